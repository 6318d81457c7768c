package llm

import "context"

// Disabled is a Client that never produces a value. It is the default
// fallback collaborator when no lean-LLM budget is configured.
type Disabled struct{}

// NewDisabled constructs a Client that always returns an empty Response.
func NewDisabled() Client { return Disabled{} }

// ExtractField returns an empty Response and no error.
func (Disabled) ExtractField(context.Context, Request) (Response, error) {
	return Response{}, nil
}

// Scripted is a fixture Client for tests: it returns a caller-supplied
// Response (or error) per field, looked up by Request.Field, falling back
// to an empty Response for any field not present in Responses.
type Scripted struct {
	Responses map[string]Response
	Errors    map[string]error
}

// NewScripted constructs a Scripted fixture Client.
func NewScripted(responses map[string]Response, errs map[string]error) Client {
	return &Scripted{Responses: responses, Errors: errs}
}

// ExtractField returns the scripted Response/error for req.Field.
func (s *Scripted) ExtractField(_ context.Context, req Request) (Response, error) {
	if s.Errors != nil {
		if err, ok := s.Errors[req.Field]; ok {
			return Response{}, err
		}
	}
	if s.Responses != nil {
		if resp, ok := s.Responses[req.Field]; ok {
			return resp, nil
		}
	}
	return Response{}, nil
}
