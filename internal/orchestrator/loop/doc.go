// Package loop provides the bounded loops the agents run on top of model
// bindings.
//
// # Tool-calling loop
//
// RunToolLoop drives a ToolModel that may request tools. Each iteration is
// one model call plus the requested tool calls, executed by ToolIteration:
//
//	res, err := loop.RunToolLoop(ctx, binding, tools, conv, 10, loop.Options{
//	    ResultFilter: validator.Filter,
//	    Progress:     cb,
//	    Node:         "fact_checker",
//	})
//
// The loop stops with Break when the model answers without tool calls and
// with BreakMaxIterations when the budget is spent. Unknown tools and tool
// errors become tool turns the model can react to; only model errors abort.
//
// The pieces follow the State / Strategy / Iteration split, so a different
// stop rule only needs another Strategy:
//
//	state := loop.NewDefaultState(max)
//	iteration := loop.NewToolIteration(model, tools, conv, opts)
//	res, err := loop.Run(ctx, state, oneToolRound{}, iteration)
//
// # Critique loop
//
// RunCritiqueLoop alternates a FactChecker and a Critic. A round continues
// when the critic is not satisfied and the round budget allows it; every
// round is kept in the history with its stop reason on the last entry.
package loop
