// Package agent runs conversations with tool use on top of a chat.Session.
//
// A Client owns the active session and drives each user request through a
// sequence of turns. Before a turn it compresses the session into a two-turn
// summary if the curated history is close to the model's token limit. During
// a turn the model's tool calls are executed concurrently and their results
// sent back until the model answers without requesting tools. After the turn a
// next-speaker check decides whether the model keeps going on its own, up to
// the turn budget.
//
// # Quick Start
//
//	env, _ := agent.NewLocalExecutionEnvironment("/path/to/project")
//	tools := agent.NewToolRegistry()
//	agent.RegisterCoreTools(tools, env, agent.CoreToolOptions{})
//	client, err := agent.NewClient(ctx, provider, "gemini-2.5-pro", tools, env)
//	if err != nil {
//		return err
//	}
//	for ev := range client.SendMessageStream(ctx, []llm.Part{llm.TextPart("hello")}) {
//		if ev.Kind == agent.EventContent {
//			fmt.Print(ev.Text)
//		}
//	}
//
// Every event stream must be drained until it is closed.
package agent
