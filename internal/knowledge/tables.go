package knowledge

// Default lookup tables. Order matters: the first keyword found in the
// user's text wins, so broader terms must not shadow more specific ones
// placed after them.

var defaultFollowUps = Table{
	{Keyword: "headache", Text: "Do you have any other symptoms like fever or nausea?"},
	{Keyword: "fever", Text: "How long have you had the fever? Is it accompanied by chills or sweating?"},
	{Keyword: "cough", Text: "Is your cough dry or productive? Do you have shortness of breath?"},
	{Keyword: "chest pain", Text: "Is the pain sharp or dull? Does it radiate to your arm or jaw?"},
	{Keyword: "fatigue", Text: "Have you been experiencing fatigue for a long time? Do you have trouble sleeping?"},
	{Keyword: "abdominal pain", Text: "Where exactly is the pain located? Is it sharp or cramping?"},
}

var defaultFacts = Table{
	{Keyword: "headache", Text: "Headaches can be caused by stress, dehydration, or migraines. Drink water and rest."},
	{Keyword: "fever", Text: "Fever is often a sign of infection. Monitor your temperature and stay hydrated."},
	{Keyword: "cough", Text: "A cough can be due to a cold, flu, or allergies. Rest and drink warm fluids."},
	{Keyword: "chest pain", Text: "Chest pain can indicate heart issues. Seek medical attention immediately."},
	{Keyword: "fatigue", Text: "Fatigue can result from lack of sleep, stress, or underlying health conditions."},
	{Keyword: "abdominal pain", Text: "Abdominal pain can be caused by indigestion, gas, or more serious conditions."},
}

// DefaultFollowUps returns a copy of the built-in follow-up question table.
func DefaultFollowUps() Table { return append(Table(nil), defaultFollowUps...) }

// DefaultFacts returns a copy of the built-in medical fact table.
func DefaultFacts() Table { return append(Table(nil), defaultFacts...) }
