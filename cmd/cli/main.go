package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
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
	case "item":
		handleItem(args)
	case "reservation":
		handleReservation(args)
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
		fmt.Println("Usage: bookingctl auth <register|login|logout|who>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "register":
		registerUser(args[1:])
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
	}
}

func handleItem(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bookingctl item <list|get|availability>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listItems(args[1:])
	case "get":
		getItem(args[1:])
	case "availability":
		itemAvailability(args[1:])
	default:
		fmt.Printf("unknown item command: %s\n", subCmd)
	}
}

func handleReservation(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bookingctl reservation <book|move|cancel|list>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "book":
		bookReservation(args[1:])
	case "move":
		moveReservation(args[1:])
	case "cancel":
		cancelReservation(args[1:])
	case "list":
		listReservations(args[1:])
	default:
		fmt.Printf("unknown reservation command: %s\n", subCmd)
	}
}

// Auth commands
func registerUser(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "password": *password}
	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/register", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == 201 {
		fmt.Printf("✓ User registered: %s\n", *email)
		if token, ok := result["token"].(string); ok {
			saveToken(token)
		}
	} else {
		fmt.Printf("✗ Registration failed: %v\n", result)
	}
}

func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "password": *password}
	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/login", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == 200 {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
			fmt.Printf("✓ Logged in as: %s\n", *email)
		}
	} else {
		fmt.Printf("✗ Login failed: %v\n", result)
	}
}

func logoutUser() {
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", token[:20])
}

// Item commands
func listItems(args []string) {
	_ = args
	req, _ := http.NewRequest("GET", getAPIURL()+"/items", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var items []map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&items)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tBOOKABLE\tDESCRIPTION")
	for _, item := range items {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", item["id"], item["itemType"], item["status"], item["description"])
	}
	w.Flush()
}

func getItem(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bookingctl item get <item-id>")
		return
	}

	req, _ := http.NewRequest("GET", getAPIURL()+"/items/"+args[0], nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var item map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&item)
	if resp.StatusCode != 200 {
		fmt.Printf("✗ Item lookup failed: %v\n", item)
		return
	}
	fmt.Printf("ID:          %v\n", item["id"])
	fmt.Printf("Type:        %v\n", item["itemType"])
	fmt.Printf("Bookable:    %v\n", item["status"])
	fmt.Printf("Description: %v\n", item["description"])
}

func itemAvailability(args []string) {
	fs := flag.NewFlagSet("availability", flag.ExitOnError)
	item := fs.String("item", "", "item ID")
	from := fs.String("from", "", "window start (RFC3339)")
	to := fs.String("to", "", "window end (RFC3339)")

	fs.Parse(args)

	if *item == "" || *from == "" || *to == "" {
		fmt.Println("Error: item, from, and to are required")
		fs.PrintDefaults()
		return
	}

	q := url.Values{}
	q.Set("from", *from)
	q.Set("to", *to)
	req, _ := http.NewRequest("GET", getAPIURL()+"/items/"+*item+"/availability?"+q.Encode(), nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result struct {
		Busy []map[string]interface{} `json:"busy"`
		Free []map[string]interface{} `json:"free"`
	}
	if resp.StatusCode != 200 {
		var errBody map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errBody)
		fmt.Printf("✗ Availability lookup failed: %v\n", errBody)
		return
	}
	json.NewDecoder(resp.Body).Decode(&result)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tSTART\tEND")
	for _, iv := range result.Busy {
		fmt.Fprintf(w, "busy\t%v\t%v\n", iv["start"], iv["end"])
	}
	for _, iv := range result.Free {
		fmt.Fprintf(w, "free\t%v\t%v\n", iv["start"], iv["end"])
	}
	w.Flush()
}

// Reservation commands
func bookReservation(args []string) {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	item := fs.String("item", "", "item ID")
	start := fs.String("start", "", "start time (RFC3339)")
	end := fs.String("end", "", "end time (RFC3339)")
	user := fs.String("user", "", "owner user ID (superuser only, defaults to caller)")

	fs.Parse(args)

	if *item == "" || *start == "" || *end == "" {
		fmt.Println("Error: item, start, and end are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]interface{}{
		"itemId": atoi(*item),
		"start":  *start,
		"end":    *end,
	}
	if *user != "" {
		payload["userId"] = *user
	}

	data, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", getAPIURL()+"/reservations", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	switch resp.StatusCode {
	case 201:
		fmt.Printf("✓ Reservation %v booked: item %v, %v → %v\n", result["id"], result["itemId"], result["start"], result["end"])
	case 409:
		fmt.Printf("✗ Window is already booked: %v\n", result["message"])
	default:
		fmt.Printf("✗ Booking failed: %v\n", result)
	}
}

func moveReservation(args []string) {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	id := fs.String("id", "", "reservation ID")
	start := fs.String("start", "", "new start time (RFC3339)")
	end := fs.String("end", "", "new end time (RFC3339)")

	fs.Parse(args)

	if *id == "" || *start == "" || *end == "" {
		fmt.Println("Error: id, start, and end are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"start": *start, "end": *end}
	data, _ := json.Marshal(payload)
	req, _ := http.NewRequest("PUT", getAPIURL()+"/reservations/"+*id, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	switch resp.StatusCode {
	case 200:
		fmt.Printf("✓ Reservation %v moved: %v → %v\n", result["id"], result["start"], result["end"])
	case 409:
		fmt.Printf("✗ New window is already booked: %v\n", result["message"])
	default:
		fmt.Printf("✗ Move failed: %v\n", result)
	}
}

func cancelReservation(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bookingctl reservation cancel <reservation-id>")
		return
	}

	req, _ := http.NewRequest("DELETE", getAPIURL()+"/reservations/"+args[0], nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == 200 {
		fmt.Printf("✓ Reservation %s cancelled\n", args[0])
	} else {
		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		fmt.Printf("✗ Cancel failed: %v\n", result)
	}
}

func listReservations(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	item := fs.String("item", "", "filter by item ID")
	user := fs.String("user", "", "filter by user ID (superuser only)")
	from := fs.String("from", "", "window start (RFC3339)")
	to := fs.String("to", "", "window end (RFC3339)")

	fs.Parse(args)

	q := url.Values{}
	if *item != "" {
		q.Set("itemId", *item)
	}
	if *user != "" {
		q.Set("userId", *user)
	}
	if *from != "" {
		q.Set("from", *from)
	}
	if *to != "" {
		q.Set("to", *to)
	}

	endpoint := getAPIURL() + "/reservations"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, _ := http.NewRequest("GET", endpoint, nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		fmt.Printf("✗ List failed: %v\n", result)
		return
	}

	var reservations []map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&reservations)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tITEM\tSTART\tEND\tACTIVE")
	for _, res := range reservations {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", res["id"], res["itemId"], res["start"], res["end"], res["isActive"])
	}
	w.Flush()
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("BOOKINGSYSTEM_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func atoi(s string) int {
	n := 0
	fmt.Sscanf(s, "%d", &n)
	return n
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.bookingsystem/token"
}

func saveToken(token string) error {
	os.MkdirAll(os.Getenv("HOME")+"/.bookingsystem", 0700)
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
	fmt.Print(`BookingSystem CLI

Usage:
  bookingctl <command> [options]

Commands:
  auth         User authentication (register, login, logout, who)
  item         Item catalog (list, get, availability)
  reservation  Reservation operations (book, move, cancel, list)
  help         Show this help message

Environment Variables:
  BOOKINGSYSTEM_API    API endpoint (default: http://localhost:8080/api)

Examples:
  bookingctl auth register -email user@example.com -password secret123
  bookingctl auth login -email user@example.com -password secret123
  bookingctl item availability -item 1 -from 2026-09-01T09:00:00Z -to 2026-09-01T18:00:00Z
  bookingctl reservation book -item 1 -start 2026-09-01T09:00:00Z -end 2026-09-01T11:00:00Z
  bookingctl reservation list -item 1
`)
}
