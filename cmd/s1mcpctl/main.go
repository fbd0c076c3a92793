// s1mcpctl is a one-shot peer for poking the bridge by hand:
//
//	s1mcpctl -addr 127.0.0.1:8765 get_npc '{"npc_id":"kyle_cooley"}'
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ifBars/S1MCPServer-sub001/pkg/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8765", "Bridge address")
	skipHandshake := flag.Bool("no-handshake", false, "Skip the handshake (reserved methods only)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: s1mcpctl [flags] <method> [params-json]")
		os.Exit(2)
	}
	method := flag.Arg(0)
	var params any
	if flag.NArg() > 1 {
		if err := json.Unmarshal([]byte(flag.Arg(1)), &params); err != nil {
			fmt.Fprintf(os.Stderr, "invalid params json: %v\n", err)
			os.Exit(2)
		}
	}

	c, err := client.Dial(*addr, client.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer c.Close()

	if !*skipHandshake {
		if _, _, err := c.Handshake(); err != nil {
			fmt.Fprintf(os.Stderr, "handshake: %v\n", err)
			os.Exit(1)
		}
	}

	result, err := c.Call(method, params)
	if err != nil {
		var rpcErr *client.RPCError
		if errors.As(err, &rpcErr) {
			raw, _ := json.MarshalIndent(rpcErr.Envelope, "", "  ")
			fmt.Fprintf(os.Stderr, "error:\n%s\n", raw)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "call %s: %v\n", method, err)
		os.Exit(1)
	}

	var pretty any
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Println(string(result))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}
