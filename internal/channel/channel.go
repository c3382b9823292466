package channel

import (
	"context"

	"aidoctor/internal/agent"
	"aidoctor/internal/domain"
)

// Consulter runs one consultation against a session's memory.
// *agent.Doctor satisfies it.
type Consulter interface {
	Consult(ctx context.Context, mem *agent.Memory, req domain.Request) domain.Response
}
