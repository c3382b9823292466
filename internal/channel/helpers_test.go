package channel

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"aidoctor/internal/agent"
	"aidoctor/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeDoctor records requests and mimics the pipeline's memory writes.
type fakeDoctor struct {
	mu       sync.Mutex
	requests []domain.Request
	resp     domain.Response
	// seen holds a copy of each request's files taken during the call,
	// since callers may delete uploads afterwards.
	seen map[string][]byte
}

func (f *fakeDoctor) Consult(_ context.Context, mem *agent.Memory, req domain.Request) domain.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.seen == nil {
		f.seen = make(map[string][]byte)
	}
	for _, p := range []string{req.AudioPath, req.ImagePath} {
		if p == "" {
			continue
		}
		if data, err := os.ReadFile(p); err == nil {
			f.seen[p] = data
		}
	}
	if req.Empty() {
		return domain.Response{Input: domain.MsgNoInput, Reply: domain.MsgNoDoctorResponse}
	}
	mem.Append(domain.RoleUser, req.Text)
	resp := f.resp
	if resp.Reply == "" {
		resp.Reply = "With what I see, I think you have a cold."
	}
	if resp.Input == "" {
		resp.Input = req.Text
	}
	mem.Append(domain.RoleAssistant, resp.Reply)
	return resp
}

func (f *fakeDoctor) last() domain.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeDoctor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
