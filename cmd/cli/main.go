package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "bot":
		handleBot(args)
	case "player":
		handlePlayer(args)
	case "tenant":
		handleTenant(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: botfleet auth <login|logout|who>")
		return
	}

	switch args[0] {
	case "login":
		login(args[1:])
	case "logout":
		logout()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", args[0])
	}
}

func handleBot(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: botfleet bot <list|create|start|stop|restart|delete>")
		return
	}

	switch args[0] {
	case "list":
		listBots()
	case "create":
		createBot(args[1:])
	case "start", "stop", "restart":
		botAction(args[0], args[1:])
	case "delete":
		deleteBot(args[1:])
	default:
		fmt.Printf("unknown bot command: %s\n", args[0])
	}
}

func handlePlayer(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: botfleet player <list|add|remove|bulk-add|check|info>")
		return
	}

	switch args[0] {
	case "list":
		listPlayers(args[1:])
	case "add":
		addPlayer(args[1:])
	case "remove":
		removePlayer(args[1:])
	case "bulk-add":
		bulkAddPlayers(args[1:])
	case "check":
		checkPlayer(args[1:])
	case "info":
		playerInfo(args[1:])
	default:
		fmt.Printf("unknown player command: %s\n", args[0])
	}
}

func handleTenant(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: botfleet tenant <list|create|delete>")
		return
	}

	switch args[0] {
	case "list":
		listTenants()
	case "create":
		createTenant(args[1:])
	case "delete":
		deleteTenant(args[1:])
	default:
		fmt.Printf("unknown tenant command: %s\n", args[0])
	}
}

// Auth commands

func login(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "account username")
	password := fs.String("password", "", "account password")
	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/login", map[string]any{
		"username": *username,
		"password": *password,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Login failed: %v\n", result["message"])
		return
	}
	if token, ok := result["token"].(string); ok {
		if err := saveToken(token); err != nil {
			fmt.Printf("Error saving token: %v\n", err)
			return
		}
		fmt.Printf("Logged in as %s\n", *username)
	}
}

func logout() {
	os.Remove(tokenFile())
	fmt.Println("Logged out")
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	fmt.Printf("Logged in (token: %s...)\n", token[:min(20, len(token))])
}

// Bot commands

func listBots() {
	result, status, err := get("/bots")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}

	bots, _ := result["bots"].([]any)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUID\tNAME\tSTATUS\tPID")
	for _, raw := range bots {
		b, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		pid := ""
		if p, ok := b["pid"].(float64); ok {
			pid = fmt.Sprintf("%d", int(p))
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%s\n", b["id"], b["uid"], b["name"], b["status"], pid)
	}
	w.Flush()
}

func createBot(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	uid := fs.String("uid", "", "game account uid")
	password := fs.String("password", "", "game account password")
	name := fs.String("name", "", "bot name")
	displayName := fs.String("display-name", "", "in-game display name")
	fs.Parse(args)

	if *uid == "" || *password == "" {
		fmt.Println("Error: uid and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/bots", map[string]any{
		"uid":          *uid,
		"password":     *password,
		"name":         *name,
		"display_name": *displayName,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusCreated {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}
	fmt.Printf("Bot created: %v\n", result["message"])
}

func botAction(action string, args []string) {
	if len(args) < 1 {
		fmt.Printf("Usage: botfleet bot %s <bot-id>\n", action)
		return
	}

	result, status, err := post("/bots/"+args[0]+"/"+action, map[string]any{})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}
	fmt.Printf("%v\n", result["message"])
}

func deleteBot(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: botfleet bot delete <bot-id>")
		return
	}

	result, status, err := del("/bots/" + args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}
	fmt.Println("Bot deleted")
}

// Player commands

func listPlayers(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: botfleet player list <bot-id>")
		return
	}

	result, status, err := get("/bots/" + args[0] + "/players")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}

	players, _ := result["players"].([]any)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tNAME\tREGION\tLEVEL\tEXPIRES")
	for _, raw := range players {
		p, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", p["uid"], p["name"], p["region"], p["level"], p["expiry_date"])
	}
	w.Flush()
}

func addPlayer(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	bot := fs.String("bot", "", "bot id")
	uid := fs.String("uid", "", "player uid")
	duration := fs.String("duration", "30d", "duration token, <N>d or <N>h")
	fs.Parse(args)

	if *bot == "" || *uid == "" {
		fmt.Println("Error: bot and uid are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/bots/"+*bot+"/players", map[string]any{
		"uid":      *uid,
		"duration": *duration,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusCreated {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}
	fmt.Printf("Player added: %v\n", result["message"])
}

func removePlayer(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	bot := fs.String("bot", "", "bot id")
	uid := fs.String("uid", "", "player uid")
	fs.Parse(args)

	if *bot == "" || *uid == "" {
		fmt.Println("Error: bot and uid are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := del("/bots/" + *bot + "/players/" + *uid)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}
	fmt.Printf("Player removed: %v\n", result["message"])
}

func bulkAddPlayers(args []string) {
	fs := flag.NewFlagSet("bulk-add", flag.ExitOnError)
	bot := fs.String("bot", "", "bot id")
	uids := fs.String("uids", "", "comma-separated player uids")
	duration := fs.String("duration", "30d", "duration token, <N>d or <N>h")
	fs.Parse(args)

	if *bot == "" || *uids == "" {
		fmt.Println("Error: bot and uids are required")
		fs.PrintDefaults()
		return
	}

	list := []string{}
	for _, uid := range strings.Split(*uids, ",") {
		if trimmed := strings.TrimSpace(uid); trimmed != "" {
			list = append(list, trimmed)
		}
	}

	result, status, err := post("/bots/"+*bot+"/players/bulk", map[string]any{
		"uids":     list,
		"duration": *duration,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}

	completed, _ := result["completed"].([]any)
	failed, _ := result["failed"].([]any)
	fmt.Printf("Completed: %d, failed: %d\n", len(completed), len(failed))
	for _, raw := range failed {
		if f, ok := raw.(map[string]any); ok {
			fmt.Printf("  %v: %v\n", f["uid"], f["message"])
		}
	}
}

func checkPlayer(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	bot := fs.String("bot", "", "bot id")
	uid := fs.String("uid", "", "player uid")
	fs.Parse(args)

	if *bot == "" || *uid == "" {
		fmt.Println("Error: bot and uid are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := get("/bots/" + *bot + "/players/" + *uid)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}
	if found, _ := result["found"].(bool); found {
		fmt.Println("Player is on the roster")
	} else {
		fmt.Println("Player is not on the roster")
	}
}

func playerInfo(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: botfleet player info <uid>")
		return
	}

	result, status, err := get("/players/" + args[0] + "/info")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}
	if identity, ok := result["identity"].(map[string]any); ok {
		fmt.Printf("Name: %v\nRegion: %v\nLevel: %v\n", identity["name"], identity["region"], identity["level"])
	}
}

// Tenant commands (admin access required)

func listTenants() {
	result, status, err := get("/tenants")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}

	tenants, _ := result["tenants"].([]any)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tMAX_BOTS\tADMIN\tEXPIRES")
	for _, raw := range tenants {
		t, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", t["id"], t["username"], t["max_bots"], t["is_admin"], t["expiry_date"])
	}
	w.Flush()
}

func createTenant(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	username := fs.String("username", "", "tenant username")
	password := fs.String("password", "", "tenant password")
	maxBots := fs.Int("max-bots", 1, "bot quota")
	days := fs.Int("days", 30, "account validity in days")
	telegram := fs.String("telegram", "", "telegram contact")
	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/tenants", map[string]any{
		"username": *username,
		"password": *password,
		"max_bots": *maxBots,
		"days":     *days,
		"telegram": *telegram,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusCreated {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}
	fmt.Printf("Tenant created: %s\n", *username)
}

func deleteTenant(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: botfleet tenant delete <tenant-id>")
		return
	}

	result, status, err := del("/tenants/" + args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("Failed: %v\n", result["message"])
		return
	}
	fmt.Println("Tenant deleted")
}

// Helper functions

func getAPIURL() string {
	if url := os.Getenv("BOTFLEET_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func get(path string) (map[string]any, int, error) {
	req, err := http.NewRequest(http.MethodGet, getAPIURL()+path, nil)
	if err != nil {
		return nil, 0, err
	}
	return doRequest(req)
}

func post(path string, payload map[string]any) (map[string]any, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequest(http.MethodPost, getAPIURL()+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req)
}

func del(path string) (map[string]any, int, error) {
	req, err := http.NewRequest(http.MethodDelete, getAPIURL()+path, nil)
	if err != nil {
		return nil, 0, err
	}
	return doRequest(req)
}

func doRequest(req *http.Request) (map[string]any, int, error) {
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	return result, resp.StatusCode, nil
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.botfleet/token"
}

func saveToken(token string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.botfleet", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`BotFleet CLI

Usage:
  botfleet <command> [options]

Commands:
  auth     Authentication (login, logout, who)
  bot      Bot operations (list, create, start, stop, restart, delete)
  player   Roster operations (list, add, remove, bulk-add, check, info)
  tenant   Tenant administration (list, create, delete) - admin access required
  help     Show this help message

Environment Variables:
  BOTFLEET_API    API endpoint (default: http://localhost:8080/api)

Examples:
  botfleet auth login -username alice -password secret
  botfleet bot create -uid 100001 -password gamepass -name worker-1
  botfleet bot start 3
  botfleet player add -bot 3 -uid 200001 -duration 30d
`)
}
