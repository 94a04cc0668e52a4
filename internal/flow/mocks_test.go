package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/BTreeMap/TalkyTrainer/internal/genai"
)

// generationCall is one recorded Complete invocation.
type generationCall struct {
	Messages []genai.Message
	Opts     genai.CompletionOptions
}

// mockGenerator routes calls by purpose: JSON calls are classifications,
// calls with a temperature are replies, the rest are regenerations.
type mockGenerator struct {
	mu sync.Mutex

	classify    []string // consumed in order; the last one repeats
	classifyErr error
	reply       string
	replyErr    error
	regenerated string
	regenErr    error

	calls []generationCall
}

func (m *mockGenerator) Complete(ctx context.Context, messages []genai.Message, opts genai.CompletionOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, generationCall{Messages: append([]genai.Message(nil), messages...), Opts: opts})
	switch {
	case opts.JSON:
		if m.classifyErr != nil {
			return "", m.classifyErr
		}
		if len(m.classify) == 0 {
			return `{"is_modification": false}`, nil
		}
		out := m.classify[0]
		if len(m.classify) > 1 {
			m.classify = m.classify[1:]
		}
		return out, nil
	case opts.Temperature != nil:
		return m.reply, m.replyErr
	default:
		return m.regenerated, m.regenErr
	}
}

func (m *mockGenerator) callsWhere(match func(generationCall) bool) []generationCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []generationCall
	for _, c := range m.calls {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

func isRegeneration(c generationCall) bool { return !c.Opts.JSON && c.Opts.Temperature == nil }
func isReply(c generationCall) bool        { return !c.Opts.JSON && c.Opts.Temperature != nil }

type sentMessage struct {
	To   string
	Body string
}

// recordingSender captures outbound messages. failOn makes sends with a matching body fail.
type recordingSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	failOn string
}

var errSendFailed = errors.New("send failed")

func (s *recordingSender) SendMessage(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && body == s.failOn {
		return errSendFailed
	}
	s.sent = append(s.sent, sentMessage{To: to, Body: body})
	return nil
}

func (s *recordingSender) bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.Body
	}
	return out
}

func (s *recordingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1].Body
}
