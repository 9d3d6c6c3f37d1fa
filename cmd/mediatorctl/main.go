// Command mediatorctl is a thin CLI client for a running mediatord
// server: one-shot index-corpus/delete-corpus/index-model/delete-model/
// query operations, mirroring the split between a batch ingestion CLI
// and an interactive query client.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"
)

const defaultServer = "http://localhost:8080"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "index-corpus":
		runPathCommand(args, "/corpora/index", "corpus_path")
	case "delete-corpus":
		runPathCommand(args, "/corpora/delete", "corpus_path")
	case "index-model":
		runPathCommand(args, "/models/index", "model_path")
	case "delete-model":
		runPathCommand(args, "/models/delete", "model_path")
	case "query":
		runQuery(args)
	case "collections":
		runCollections(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: mediatorctl <command> [flags]

commands:
  index-corpus   --server URL --path FILE
  delete-corpus  --server URL --path FILE
  index-model    --server URL --path DIR
  delete-model   --server URL --path DIR
  query          --server URL --id Q1..Q15 [--corpus C] [--model M] [--doc-id D] [--topic N] [--threshold N] [--string S] [--payload P] [--rows N] [--start N] [--results-file PATH]
  collections    --server URL`)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func runPathCommand(args []string, route, param string) {
	fs := flag.NewFlagSet(route, flag.ExitOnError)
	server := fs.String("server", defaultServer, "Base URL of the mediatord server")
	path := fs.String("path", "", "Manifest or model directory path (required)")
	fs.Parse(args)

	if *path == "" {
		log.Fatal("--path required")
	}

	body, _ := json.Marshal(map[string]string{param: *path})
	resp, err := postJSON(*server+route, body)
	if err != nil {
		log.Fatal(err)
	}
	printResponse(resp)
}

func runCollections(args []string) {
	fs := flag.NewFlagSet("collections", flag.ExitOnError)
	server := fs.String("server", defaultServer, "Base URL of the mediatord server")
	fs.Parse(args)

	resp, err := httpClient().Get(*server + "/collections")
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	server := fs.String("server", defaultServer, "Base URL of the mediatord server")
	id := fs.String("id", "", "Catalogue query id, e.g. Q5 (required)")
	corpus := fs.String("corpus", "", "Corpus collection name")
	model := fs.String("model", "", "Model collection name")
	docID := fs.String("doc-id", "", "Document id")
	topic := fs.String("topic", "", "Topic index")
	threshold := fs.String("threshold", "", "Payload weight threshold (Q4)")
	substring := fs.String("string", "", "Title substring (Q7)")
	payload := fs.String("payload", "", "Caller-supplied encoded payload (Q14)")
	collection := fs.String("collection", "", "Collection name (Q3 on a raw collection)")
	rows := fs.String("rows", "", "Page size; omitted means \"all\"")
	start := fs.String("start", "", "Page offset")
	resultsFile := fs.String("results-file", "", "Path to persist the returned documents as JSON")
	fs.Parse(args)

	if *id == "" {
		log.Fatal("--id required")
	}

	q := url.Values{}
	set := func(name, value string) {
		if value != "" {
			q.Set(name, value)
		}
	}
	set("corpus", *corpus)
	set("model", *model)
	set("doc_id", *docID)
	set("topic", *topic)
	set("threshold", *threshold)
	set("string", *substring)
	set("payload", *payload)
	set("collection", *collection)
	set("rows", *rows)
	set("start", *start)
	set("results_file_path", *resultsFile)

	u := fmt.Sprintf("%s/queries/%s?%s", *server, *id, q.Encode())
	resp, err := httpClient().Get(u)
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func postJSON(u string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return httpClient().Do(req)
}

func printResponse(resp *http.Response) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}
