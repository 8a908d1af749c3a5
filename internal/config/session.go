package config

import "sync"

// Session holds the settings a turn reads at send time. Safe for concurrent use.
type Session struct {
	mu       sync.RWMutex
	display  DisplayConfig
	thinking bool
}

func NewSession(cfg *Config) *Session {
	s := &Session{}
	s.Apply(cfg)
	return s
}

// Apply copies the display and thinking settings from cfg.
func (s *Session) Apply(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = cfg.Display
	s.thinking = cfg.Thinking.Enabled
}

func (s *Session) SetDisplay(width, height, number int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = DisplayConfig{Width: width, Height: height, Number: number}
}

func (s *Session) ClearDisplay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display.Width, s.display.Height = 0, 0
}

func (s *Session) SetThinking(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thinking = on
}

// DisplaySize returns the display geometry; ok is false when none is configured.
func (s *Session) DisplaySize() (width, height int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display.Width, s.display.Height, s.display.Enabled()
}

func (s *Session) DisplayNumber() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display.Number
}

func (s *Session) ThinkingEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thinking
}
