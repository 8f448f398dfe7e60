package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"girochain/cmd/internal/passphrase"
	"girochain/crypto"
)

const (
	defaultEndpoint = "http://localhost:8080"
	rpcTokenEnv     = "GIRO_RPC_TOKEN"
	ownerPassEnv    = "GIRO_OWNER_PASS"
)

var (
	rpcEndpoint  = defaultEndpoint
	rpcAuthToken = strings.TrimSpace(os.Getenv(rpcTokenEnv))
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if endpoint := strings.TrimSpace(os.Getenv("GIRO_RPC_URL")); endpoint != "" {
		rpcEndpoint = endpoint
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "balance":
		err = runBalance(args)
	case "supply":
		err = runSupply(args)
	case "pool":
		err = runPool(args)
	case "claim-status":
		err = runClaimStatus(args)
	case "mint-pool":
		err = runMintPool(args)
	case "pause":
		err = runPauseToggle("giro_pause", args)
	case "unpause":
		err = runPauseToggle("giro_unpause", args)
	case "paused":
		err = runPaused(args)
	case "product":
		err = runProduct(args)
	case "products":
		err = runProducts(args)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: giroctl <command> [flags]

Commands:
  balance <address>          Print the GIRO balance of an address
  supply                     Print the total token supply
  pool                       Print the reward pool balance
  claim-status <addr> <kind> Print whether a reward was claimed and is claimable
  mint-pool <amount-wei>     Top up the reward pool (owner keystore + auth token)
  pause                      Pause transfers and claims (owner keystore + auth token)
  unpause                    Resume transfers and claims (owner keystore + auth token)
  paused                     Print the pause flag
  product <id>               Print a marketplace product
  products                   Print all active marketplace products

Environment:
  GIRO_RPC_URL     Node endpoint (default http://localhost:8080)
  GIRO_RPC_TOKEN   Bearer token for privileged calls
  GIRO_OWNER_PASS  Passphrase for the owner keystore`)
}

func runBalance(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: giroctl balance <address>")
	}
	result, err := callRPC("giro_balanceOf", map[string]string{"address": args[0]}, false)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runSupply(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: giroctl supply")
	}
	result, err := callRPC("giro_totalSupply", nil, false)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runPool(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: giroctl pool")
	}
	result, err := callRPC("giro_rewardPoolBalance", nil, false)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runClaimStatus(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: giroctl claim-status <address> <kind>")
	}
	params := map[string]string{"wallet": args[0], "kind": args[1]}
	claimed, err := callRPC("giro_hasClaimedReward", params, false)
	if err != nil {
		return err
	}
	claimable, err := callRPC("giro_canClaimReward", params, false)
	if err != nil {
		return err
	}
	fmt.Printf("claimed: %s\nclaimable: %s\n", claimed, claimable)
	return nil
}

func runMintPool(args []string) error {
	fs := flag.NewFlagSet("mint-pool", flag.ExitOnError)
	keystorePath := fs.String("keystore", "owner.keystore", "Path to the owner keystore")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: giroctl mint-pool [--keystore path] <amount-wei>")
	}
	owner, err := ownerAddress(*keystorePath)
	if err != nil {
		return err
	}
	result, err := callRPC("giro_mintRewardPool", map[string]string{
		"caller": owner,
		"amount": fs.Arg(0),
	}, true)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runPauseToggle(method string, args []string) error {
	fs := flag.NewFlagSet(method, flag.ExitOnError)
	keystorePath := fs.String("keystore", "owner.keystore", "Path to the owner keystore")
	fs.Parse(args)
	if fs.NArg() != 0 {
		return fmt.Errorf("usage: giroctl %s [--keystore path]", strings.TrimPrefix(method, "giro_"))
	}
	owner, err := ownerAddress(*keystorePath)
	if err != nil {
		return err
	}
	result, err := callRPC(method, map[string]string{"caller": owner}, true)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runPaused(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: giroctl paused")
	}
	result, err := callRPC("giro_paused", nil, false)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runProduct(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: giroctl product <id>")
	}
	var id uint64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid product id %q", args[0])
	}
	result, err := callRPC("market_getProduct", map[string]uint64{"id": id}, false)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runProducts(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: giroctl products")
	}
	result, err := callRPC("market_getActiveProducts", nil, false)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func ownerAddress(keystorePath string) (string, error) {
	pass, err := passphrase.NewSource(ownerPassEnv).Get()
	if err != nil {
		return "", err
	}
	key, err := crypto.LoadFromKeystore(keystorePath, pass)
	if err != nil {
		return "", fmt.Errorf("load keystore %s: %w", keystorePath, err)
	}
	return key.PubKey().Address().String(), nil
}

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires %s to be set", rpcTokenEnv)
		}
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func printJSON(raw json.RawMessage) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
