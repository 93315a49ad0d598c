package cmd

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// lateSender forwards to a program that is created after its target.
type lateSender struct {
	mu      sync.Mutex
	program *tea.Program
}

func (s *lateSender) set(p *tea.Program) {
	s.mu.Lock()
	s.program = p
	s.mu.Unlock()
}

func (s *lateSender) Send(msg tea.Msg) {
	s.mu.Lock()
	p := s.program
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}
