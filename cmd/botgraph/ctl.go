package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/djlord-it/botgraph/internal/config"
)

const ctlTimeout = 15 * time.Second

func printCtlUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  botgraph ctl <action> [args]

Actions:
  status              Show scheduler status
  start | stop        Start or stop polling
  resume              Resume polling after stop
  clear               Drop every sample in the window
  reconfigure HOURS   Change the window length and clear
  regions             List regions and whether they are included
  toggle REGION_ID    Include or exclude a region
  ticks [LIMIT]       Show the most recent journaled ticks`)
}

// ctlClient talks to a running server's HTTP API.
type ctlClient struct {
	base string
	http *http.Client
}

func newCtlClient(base string) *ctlClient {
	return &ctlClient{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{Timeout: ctlTimeout},
	}
}

// ctlBaseURL prefers BOTGRAPH_URL and otherwise derives a local URL from HTTP_ADDR.
func ctlBaseURL() string {
	if u := os.Getenv("BOTGRAPH_URL"); u != "" {
		return u
	}
	addr := config.Load().HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func runCtl(args []string, out io.Writer) int {
	if len(args) == 0 {
		printCtlUsage()
		return exitRuntimeError
	}

	c := newCtlClient(ctlBaseURL())

	var (
		method = http.MethodGet
		path   string
		body   any
	)

	switch action := args[0]; action {
	case "status":
		path = "/api/status"
	case "start", "stop", "resume", "clear":
		method, path = http.MethodPost, "/api/control/"+action
	case "reconfigure":
		if len(args) != 2 {
			printCtlUsage()
			return exitRuntimeError
		}
		hours, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid hours %q: %v\n", args[1], err)
			return exitRuntimeError
		}
		method, path = http.MethodPost, "/api/control/reconfigure"
		body = map[string]float64{"hours": hours}
	case "regions":
		path = "/api/regions"
	case "toggle":
		if len(args) != 2 {
			printCtlUsage()
			return exitRuntimeError
		}
		method, path = http.MethodPost, "/api/regions/"+url.PathEscape(args[1])+"/toggle"
	case "ticks":
		path = "/api/ticks"
		if len(args) == 2 {
			path += "?limit=" + url.QueryEscape(args[1])
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown ctl action: %s\n", action)
		printCtlUsage()
		return exitRuntimeError
	}

	status, data, err := c.do(method, path, body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		return exitRuntimeError
	}
	if status >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			fmt.Fprintf(os.Stderr, "server returned %d: %s\n", status, e.Error)
		} else {
			fmt.Fprintf(os.Stderr, "server returned %d\n", status)
		}
		return exitRuntimeError
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(data)
	}
	fmt.Fprintln(out, strings.TrimSpace(pretty.String()))
	return exitSuccess
}

func (c *ctlClient) do(method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}
