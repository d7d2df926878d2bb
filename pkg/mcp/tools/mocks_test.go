package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ddsprasad/data-sense-ai/pkg/services"
)

type stubResolver struct {
	res        *services.Resolution
	refreshErr error
	status     services.Status

	question string
	prior    *services.PriorContext
	refresh  int
}

func (s *stubResolver) Resolve(ctx context.Context, question string, prior *services.PriorContext) *services.Resolution {
	s.question = question
	s.prior = prior
	return s.res
}

func (s *stubResolver) ResolveBatch(ctx context.Context, items []services.BatchItem) []*services.Resolution {
	out := make([]*services.Resolution, len(items))
	for i := range items {
		out[i] = s.res
	}
	return out
}

func (s *stubResolver) RefreshSchema(ctx context.Context) error {
	s.refresh++
	return s.refreshErr
}

func (s *stubResolver) Status() services.Status {
	return s.status
}

// toolResponse is the decoded result of a tools/call.
type toolResponse struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r toolResponse) text() string {
	if len(r.Result.Content) == 0 {
		return ""
	}
	return r.Result.Content[0].Text
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	argBytes, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("failed to marshal args: %v", err)
	}
	request := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":%q,"arguments":%s},"id":1}`, name, argBytes)

	result := s.HandleMessage(context.Background(), []byte(request))
	resultBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var response toolResponse
	if err := json.Unmarshal(resultBytes, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return response
}

func listTools(t *testing.T, s *server.MCPServer) map[string]string {
	t.Helper()
	result := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resultBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var response struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resultBytes, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	tools := make(map[string]string, len(response.Result.Tools))
	for _, tool := range response.Result.Tools {
		tools[tool.Name] = tool.Description
	}
	return tools
}
