package engine

import (
	"context"
	"sync"
	"time"

	"github.com/danielolaszy/arisa/internal/module"
	"github.com/danielolaszy/arisa/pkg/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSource serves tickets and projects from memory.
type fakeSource struct {
	mu sync.Mutex

	keys      []string
	searchErr error
	jqls      []string
	searched  chan struct{}

	issues   map[string]*models.Issue
	fetchErr map[string]error

	projects     map[string]*models.Project
	projectErr   error
	projectCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		issues:   map[string]*models.Issue{},
		fetchErr: map[string]error{},
		projects: map[string]*models.Project{},
	}
}

func (f *fakeSource) addIssue(key, project string) *models.Issue {
	issue := &models.Issue{Key: key, Project: project}
	f.issues[key] = issue
	f.keys = append(f.keys, key)
	return issue
}

func (f *fakeSource) SearchIssues(_ context.Context, jql string) ([]string, error) {
	f.mu.Lock()
	f.jqls = append(f.jqls, jql)
	keys, err := f.keys, f.searchErr
	f.mu.Unlock()

	if f.searched != nil {
		f.searched <- struct{}{}
	}
	return keys, err
}

func (f *fakeSource) GetIssue(_ context.Context, key string) (*models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[key]; err != nil {
		return nil, err
	}
	return f.issues[key], nil
}

func (f *fakeSource) GetProject(_ context.Context, key string) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projectCalls++
	if f.projectErr != nil {
		return nil, f.projectErr
	}
	return f.projects[key], nil
}

// stubModule returns a fixed outcome per ticket key and records every request.
type stubModule struct {
	mu       sync.Mutex
	outcomes map[string]module.Outcome
	requests []module.Request
	panics   bool
}

func newStubModule() *stubModule {
	return &stubModule{outcomes: map[string]module.Outcome{}}
}

func (s *stubModule) Run(_ context.Context, req module.Request) module.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.panics {
		panic("boom")
	}
	if outcome, ok := s.outcomes[req.Issue.Key]; ok {
		return outcome
	}
	return module.NoActionNeeded()
}

func (s *stubModule) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubModule) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.requests))
	for _, req := range s.requests {
		keys = append(keys, req.Issue.Key)
	}
	return keys
}
