package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

const usage = `usage:
  cli add [url]                      register a site (prompts when url is omitted)
  cli history  [-days N] [-region R] <target-id>
  cli downtime [-days N] [-region R] <target-id>
  cli last     [-region R] <target-id>

API_BASE (default http://localhost:8080) and API_KEY are read from the environment.`

type client struct {
	base string
	key  string
	http *http.Client
}

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	c := &client{base: strings.TrimRight(api, "/"), key: os.Getenv("API_KEY"), http: &http.Client{Timeout: 30 * time.Second}}

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "add":
		err = c.add(os.Args[2:])
	case "history":
		err = c.series("", os.Args[2:])
	case "downtime":
		err = c.series("/downtime", os.Args[2:])
	case "last":
		err = c.last(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *client) add(args []string) error {
	raw := ""
	if len(args) > 0 {
		raw = args[0]
	} else {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Enter a site URL to monitor (e.g., https://example.com): ")
		raw, _ = reader.ReadString('\n')
	}
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return fmt.Errorf("invalid URL %q", raw)
	}

	body, _ := json.Marshal(map[string]string{"url": raw})
	var out struct {
		Target  domain.Target `json:"target"`
		Summary struct {
			Up         bool   `json:"up"`
			HTTPStatus int    `json:"http_status"`
			LatencyMS  int64  `json:"latency_ms"`
			Reason     string `json:"reason"`
		} `json:"summary"`
	}
	if err := c.do(http.MethodPost, "/api/targets", bytes.NewReader(body), &out); err != nil {
		return err
	}
	state := "DOWN"
	if out.Summary.Up {
		state = "UP"
	}
	fmt.Printf("Added %s as %s: %s (%d, %d ms) %s\n",
		out.Target.URL, out.Target.ID, state, out.Summary.HTTPStatus, out.Summary.LatencyMS, out.Summary.Reason)
	return nil
}

func (c *client) series(suffix string, args []string) error {
	fs := flag.NewFlagSet("series", flag.ContinueOnError)
	days := fs.Int("days", 1, "lookback in days: 1, 7 or 30")
	region := fs.String("region", "", "only samples from this region")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one target id")
	}
	q := url.Values{}
	q.Set("days", fmt.Sprint(*days))
	if *region != "" {
		q.Set("region", *region)
	}
	var pts []domain.TimeSeriesPoint
	if err := c.do(http.MethodGet, "/monitor/"+url.PathEscape(fs.Arg(0))+suffix+"?"+q.Encode(), nil, &pts); err != nil {
		return err
	}
	for _, p := range pts {
		fmt.Printf("%s\t%.0f ms\n", p.Time.Local().Format(time.RFC3339), p.Value)
	}
	fmt.Printf("%d sample(s)\n", len(pts))
	return nil
}

func (c *client) last(args []string) error {
	fs := flag.NewFlagSet("last", flag.ContinueOnError)
	region := fs.String("region", "", "only samples from this region")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one target id")
	}
	path := "/monitor/" + url.PathEscape(fs.Arg(0)) + "/last_downtime"
	if *region != "" {
		path += "?region=" + url.QueryEscape(*region)
	}
	var p *domain.TimeSeriesPoint
	if err := c.do(http.MethodGet, path, nil, &p); err != nil {
		return err
	}
	if p == nil {
		fmt.Println("No downtime in the last 30 days.")
		return nil
	}
	fmt.Println("Last downtime:", p.Time.Local().Format(time.RFC3339))
	return nil
}

func (c *client) do(method, path string, body io.Reader, out any) error {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
