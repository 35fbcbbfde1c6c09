package answer

import "context"

// Mock is an in-process Client for tests and deployments without an answer
// backend configured. It returns Text when set, otherwise the fallback.
type Mock struct {
	Text string

	// Fn, when set, overrides Answer.
	Fn func(ctx context.Context, query string, images [][]byte) (string, error)
}

var _ Client = (*Mock)(nil)

// Answer implements Client.
func (m *Mock) Answer(ctx context.Context, query string, images [][]byte) (string, error) {
	if m.Fn != nil {
		return m.Fn(ctx, query, images)
	}
	if m.Text != "" {
		return m.Text, nil
	}
	return Fallback(query, len(images)), nil
}
