// Command txsubmit submits a signed, hex-encoded extrinsic to a Substrate
// node's author_submitExtrinsic RPC and reports the result.
//
// Grounded on original_source/main.py's submit_extrinsic: a bare JSON-RPC
// POST (no chain client, no retry/reconnect machinery -- this is a one-shot
// operator tool, not a long-running shovel), with the same "Transaction is
// temporarily banned" special case treated as likely-already-submitted
// rather than an outright failure. Flag/env handling follows the teacher's
// cmd/tools/* one-shot binaries.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type rpcRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  string   `json:"method"`
	Params  []string `json:"params"`
	ID      int      `json:"id"`
}

type rpcResponse struct {
	Result *string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var nodeURL string
	flag.StringVar(&nodeURL, "node", os.Getenv("SUBSTRATE_ARCHIVE_NODE_URL"), "RPC URL of the Substrate node (or SUBSTRATE_ARCHIVE_NODE_URL)")
	flag.Parse()

	args := flag.Args()
	if nodeURL == "" || len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: txsubmit -node <rpc-url> <extrinsic-hex-file>")
		os.Exit(2)
	}

	hexExtrinsic, err := readHexExtrinsic(args[0])
	if err != nil {
		log.Fatalf("reading extrinsic file: %v", err)
	}
	log.Printf("hex extrinsic: %s", hexExtrinsic)

	ok, err := submitExtrinsic(nodeURL, hexExtrinsic)
	if err != nil {
		log.Fatalf("submitting extrinsic: %v", err)
	}
	if !ok {
		os.Exit(1)
	}
}

func readHexExtrinsic(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// submitExtrinsic POSTs the JSON-RPC request. A non-nil result is success; a
// "Transaction is temporarily banned" error is treated as informational
// (the node has almost certainly already seen this extrinsic) rather than a
// hard failure, matching submit_extrinsic's exact message check.
func submitExtrinsic(nodeURL, hexExtrinsic string) (bool, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "author_submitExtrinsic",
		Params:  []string{hexExtrinsic},
		ID:      1,
	})
	if err != nil {
		return false, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(nodeURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("POST %s: %w", nodeURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("error submitting extrinsic to the node: %d, %s", resp.StatusCode, string(body))
		return false, nil
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}

	if rpcResp.Result != nil {
		log.Printf("transaction submitted successfully. tx hash: %s", *rpcResp.Result)
		return true, nil
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Message == "Transaction is temporarily banned" {
			log.Printf("node rejected extrinsic: %s. this specific message strongly indicates the transaction has already been submitted.", rpcResp.Error.Message)
		} else {
			log.Printf("node rejected extrinsic: %s", rpcResp.Error.Message)
		}
		return false, nil
	}
	log.Printf("unexpected response with neither result nor error: %s", string(body))
	return false, nil
}
