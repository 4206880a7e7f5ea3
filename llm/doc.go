// Package llm is the boundary between the agent and the remote inference
// service. It presents a role-tagged content model (user/model turns made of
// text, thought, function-call and function-response parts) and a small
// Provider contract that concrete backends implement.
//
// # Architecture
//
// The package follows a layered layout:
//
//   - Content model: Content, Part, Request, GenerateConfig, Response
//   - Provider contract: Provider, TokenCounter and the optional Closer
//   - Resilience: error taxonomy, IsRetryable and the Retry executor
//   - Client: provider routing and middleware on top of registered providers
//   - Backends: GenAIAdapter (google.golang.org/genai) and GollmAdapter
//     (github.com/teilomillet/gollm)
//
// # Quick Start
//
//	adapter, _ := llm.NewGenAIAdapter(ctx, llm.GenAIConfig{APIKey: os.Getenv("GEMINI_API_KEY")})
//	client := llm.NewClient(llm.WithProvider("gemini", adapter))
//
//	resp, err := llm.Retry(ctx, llm.DefaultRetryPolicy(), func(ctx context.Context) (*llm.Response, error) {
//	    return client.GenerateContent(ctx, &llm.Request{
//	        Model:    "gemini-2.5-pro",
//	        Contents: []*llm.Content{llm.UserText("Hello")},
//	    })
//	})
//	fmt.Println(resp.Text())
//
// # Token budgets
//
// The catalog records the context window of known models. TokenLimit returns
// zero for unknown models, which callers treat as "budget unknown".
package llm
