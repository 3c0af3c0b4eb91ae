package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

type client struct {
	addr string
	http *http.Client
}

type ingestResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type jobResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

type queryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Error   string   `json:"error"`
}

func main() {
	var addr string
	flag.StringVar(&addr, "addr", "http://localhost:8080", "ragd server address")
	flag.Parse()

	cli := &client{
		addr: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: 2 * time.Minute},
	}

	if err := run(cli); err != nil {
		log.Fatal(err)
	}
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(cli *client) error {
	color.Cyan("\nChat with your knowledge base (type 'exit' to quit)")
	color.Cyan("Paste a URL to ingest it, or ask a question.")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	urlRegex := regexp.MustCompile(`https?://[^\s]+`)

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if strings.ToLower(input) == "exit" {
			break
		}
		if input == "" {
			continue
		}

		if url := urlRegex.FindString(input); url != "" {
			cli.ingest(url)
			if input == url {
				continue
			}
		}

		querySpinner := getSpinner(" Searching knowledge base...")
		resp, err := cli.query(input)
		querySpinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		assistantPrompt("\nAssistant: %s\n", resp.Answer)
		if len(resp.Sources) > 0 {
			color.Blue("\nSources:")
			for _, source := range resp.Sources {
				color.Blue("  %s", source)
			}
		}
	}

	return nil
}

// ingest submits the URL and polls the job until it settles.
func (c *client) ingest(url string) {
	color.Blue("\nSubmitting URL: %s", url)

	var resp ingestResponse
	status, err := c.postJSON("/ingest-url", map[string]string{"url": url}, &resp)
	if err != nil {
		color.Red("Failed to submit URL: %v\n", err)
		return
	}

	switch status {
	case http.StatusAccepted:
		// fall through to polling
	case http.StatusConflict:
		color.Yellow("Already submitted: job %s (%s)\n", resp.JobID, resp.Status)
		return
	default:
		color.Red("Submission failed: %s\n", resp.Error)
		return
	}

	spinner := getSpinner(" Ingesting...")
	defer spinner.Finish()

	for {
		time.Sleep(time.Second)
		spinner.Add(1)

		var job jobResponse
		if _, err := c.getJSON("/jobs/"+resp.JobID, &job); err != nil {
			color.Red("\nFailed to poll job: %v\n", err)
			return
		}

		switch job.Status {
		case "COMPLETED":
			spinner.Finish()
			color.Green("\n✓ Ingested %s\n", url)
			return
		case "FAILED":
			spinner.Finish()
			color.Red("\n✗ Ingestion failed for %s (job %s)\n", url, job.ID)
			return
		}
	}
}

func (c *client) query(text string) (queryResponse, error) {
	var resp queryResponse
	status, err := c.postJSON("/query", map[string]string{"query": text}, &resp)
	if err != nil {
		return resp, err
	}
	if status != http.StatusOK {
		return resp, fmt.Errorf("query failed: %s", resp.Error)
	}
	return resp, nil
}

func (c *client) postJSON(path string, body interface{}, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Post(c.addr+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, decodeBody(resp.Body, out)
}

func (c *client) getJSON(path string, out interface{}) (int, error) {
	resp, err := c.http.Get(c.addr + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, decodeBody(resp.Body, out)
}

func decodeBody(r io.Reader, out interface{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
