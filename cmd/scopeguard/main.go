// scopeguard checks project chat messages against the contracted scope of
// work before anyone replies.
package main

import "github.com/ppiankov/scopeguard/internal/cli"

func main() {
	cli.Execute()
}
