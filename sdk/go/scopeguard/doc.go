// Package scopeguard provides in-process scope checks for Go chat backends.
// It assembles the guardian from a scopeguard config, checks each inbound
// message against the project's contracted scope and records every decision
// in the transcript before the caller sees it.
//
// Usage:
//
//	sg, err := scopeguard.New(ctx, scopeguard.WithConfigPath("scopeguard.yaml"))
//	defer sg.Close()
//	reply := sg.Wrap(myAssistant, scopeguard.WrapWithProject("promo"))
//	text, err := reply(ctx, "Can you add a 3D flyover?")
//	var oos *scopeguard.OutOfScopeError
//	if errors.As(err, &oos) {
//	    // send oos.SuggestedResponse instead
//	}
//
// The SDK links directly against internal packages. External users import
// github.com/ppiankov/scopeguard/sdk/go/scopeguard.
package scopeguard
