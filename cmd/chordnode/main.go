// Command chordnode runs one Chord DHT node with a fused HTTP/1.x
// listener sharing its event loop, and drives it from a line-oriented
// REPL on stdin: ping, query, route, boot, keys, set, get, data, test,
// exit.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/meshring/chordnode/chord"
	"github.com/meshring/chordnode/dht"
	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/eventloop"
	"github.com/meshring/chordnode/httpserver"
	"github.com/meshring/chordnode/key"
	"github.com/meshring/chordnode/ratelimit"
	"github.com/meshring/chordnode/xlog"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		listen    = flag.String("listen", "0.0.0.0:8888", "UDP endpoint this node's DHT transport binds to")
		bits      = flag.Uint("bits", key.Bits32, "ring width in bits (32 for a local test ring, 160 for a deployment ring)")
		target    = flag.String("target", "127.0.0.1:4444", "default peer endpoint for ping/query/boot/keys/data/test")
		httpAddr  = flag.String("http", "", "optional HTTP listen endpoint, sharing this node's event loop; empty disables it")
		hostName  = flag.String("http-host", "", "Host header value the HTTP listener reports")
		rpcTO     = flag.Duration("rpc-timeout", dht.DefaultSettings().RPCTimeout, "per-request RPC timeout")
		maintain  = flag.Duration("maintenance-period", chord.DefaultMaintenancePeriod, "stabilize/fix-fingers/check-predecessor period")
	)
	flag.Parse()

	logger := xlog.New(slog.NewJSONHandler(os.Stderr, nil), logiface.LevelInformational)

	space := key.NewSpace(*bits)

	selfEndpoint, err := endpoint.Parse(*listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chordnode: parse -listen: %v\n", err)
		return 1
	}
	id, err := space.Random()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chordnode: generate identity: %v\n", err)
		return 1
	}
	self := chord.Node{ID: id, Endpoint: selfEndpoint}

	logger.Info().Str("endpoint", self.Endpoint.String()).Str("id", self.ID.Hex()).Log("identity")

	loop, err := eventloop.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chordnode: new event loop: %v\n", err)
		return 1
	}
	defer loop.Close()

	settings := dht.Settings{RPCTimeout: *rpcTO, MaintenancePeriod: *maintain}
	node, err := dht.New(loop, self, space, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chordnode: new runner: %v\n", err)
		return 1
	}

	// OnKeys/OnSet/OnGet left unset: the Runner's own in-memory store
	// answers those directly. OnData just logs what arrives.
	node.OnData = func(peer chord.Node, payload []byte) {
		logger.Info().Str("peer", peer.Endpoint.String()).Log(string(payload))
	}
	node.OnTransportError = func(err error) {
		logger.Err(err).Log("transport")
	}

	if *httpAddr != "" {
		httpEndpoint, err := endpoint.Parse(*httpAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chordnode: parse -http: %v\n", err)
			return 1
		}
		httpSettings := httpserver.DefaultSettings(*hostName)
		accept := ratelimit.New(map[time.Duration]int{time.Second: 64})
		if _, err := httpserver.Listen(loop, httpEndpoint, &httpSettings, httpStatus(node), accept); err != nil {
			fmt.Fprintf(os.Stderr, "chordnode: listen -http: %v\n", err)
			return 1
		}
		logger.Info().Str("endpoint", httpEndpoint.String()).Log("http listening")
	}

	if err := node.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chordnode: run: %v\n", err)
		return 1
	}
	defer node.Stop()

	targetEndpoint, err := endpoint.Parse(*target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chordnode: parse -target: %v\n", err)
		return 1
	}
	targetNode := chord.Node{ID: space.Zero(), Endpoint: targetEndpoint}

	fmt.Println("Waiting for commands")
	repl(node, space, targetNode)
	return 0
}

// httpStatus answers every HTTP request with the node's own identity
// and current Chord routing state — the fused listener's only route,
// standing in for whatever REST surface a deployment wires on top.
func httpStatus(node *dht.Runner) httpserver.OnRequest {
	return func(_ string, req httpserver.Request, _ any) httpserver.Response {
		succ := node.Overlay().Successor()
		pred, hasPred := node.Overlay().Predecessor()
		body := fmt.Sprintf("id=%s\nendpoint=%s\nsuccessor=%s\n", node.Self().ID.Hex(), node.Self().Endpoint, succ.Endpoint)
		if hasPred {
			body += fmt.Sprintf("predecessor=%s\n", pred.Endpoint)
		} else {
			body += "predecessor=none\n"
		}
		resp := httpserver.NewResponse(req.Version, 200, body)
		resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
		return resp
	}
}

func repl(node *dht.Runner, space *key.Space, target chord.Node) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		command := scanner.Text()
		if command == "exit" {
			return
		}
		dispatch(node, space, target, command, scanner)
	}
}

func dispatch(node *dht.Runner, space *key.Space, target chord.Node, command string, stdin *bufio.Scanner) {
	switch command {
	case "ping":
		node.Ping(target,
			func(rtt time.Duration, end dht.EndFunc) {
				fmt.Printf("Ping %s\n", rtt)
				end(dht.Report{Code: dht.Normal})
			},
			func(dht.Report) { fmt.Println("Ping Ended") },
		)

	case "query":
		k, err := space.Random()
		if err != nil {
			fmt.Println("query:", err)
			return
		}
		node.Query(target, k,
			func(answer chord.Node, end dht.EndFunc) {
				fmt.Printf("Query %s\n", answer.Endpoint)
				end(dht.Report{Code: dht.Normal})
			},
			func(dht.Report) { fmt.Println("Query Ended") },
		)

	case "route":
		k, err := space.Random()
		if err != nil {
			fmt.Println("route:", err)
			return
		}
		node.Route(k,
			func(answer chord.Node, end dht.EndFunc) {
				fmt.Printf("Route %s\n", answer.Endpoint)
				end(dht.Report{Code: dht.Normal})
			},
			func(dht.Report) { fmt.Println("Route Ended") },
		)

	case "boot":
		node.Bootstrap(target, func(dht.Report) { fmt.Println("Bootstrap ended") })

	case "keys":
		node.Keys(target,
			func(keys []key.Key, end dht.EndFunc) {
				fmt.Printf("Keys { %v }\n", keys)
				end(dht.Report{Code: dht.Normal})
			},
			func(dht.Report) { fmt.Println("Keys ended") },
		)

	case "set":
		k, err := space.Random()
		if err != nil {
			fmt.Println("set:", err)
			return
		}
		node.Set(k, []byte("Hello there"), func(dht.Report) { fmt.Println("Set ended") })

	case "get":
		k, err := space.Random()
		if err != nil {
			fmt.Println("get:", err)
			return
		}
		node.Get(k,
			func(data []byte, end dht.EndFunc) {
				fmt.Printf("Get { %s }\n", data)
				end(dht.Report{Code: dht.Normal})
			},
			func(dht.Report) { fmt.Println("Get ended") },
		)

	case "data":
		fmt.Print("Enter data : ")
		if stdin.Scan() {
			node.SendTo(target, []byte(stdin.Text()))
		}

	case "test":
		const count = 100
		var total time.Duration
		done := make(chan struct{})
		var i int
		var ping func()
		ping = func() {
			if i == count {
				fmt.Printf("Result : %s\n", total/count)
				close(done)
				return
			}
			i++
			node.Ping(target,
				func(rtt time.Duration, end dht.EndFunc) {
					fmt.Printf("Ping %s\n", rtt)
					total += rtt
					end(dht.Report{Code: dht.Normal})
				},
				func(dht.Report) {
					fmt.Println("Ping Ended")
					time.AfterFunc(50*time.Millisecond, ping)
				},
			)
		}
		ping()
		<-done

	default:
		node.SendTo(target, []byte(command))
	}
}
