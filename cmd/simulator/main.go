package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Global flags
	apiURL := "http://localhost:8080"
	if envURL := os.Getenv("API_URL"); envURL != "" {
		apiURL = envURL
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "seed":
		seedCmd(apiURL, args)
	case "check":
		checkCmd(apiURL, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Simulator - Development tool for exercising a running backend

USAGE:
  simulator <command> [options]

COMMANDS:
  seed      Register users and have each of them publish posts
  check     Walk one post through create, search, delete and verify every
            read model converges; then verify refresh tokens are single use
  help      Show this help message

ENVIRONMENT:
  API_URL   Backend API URL (default: http://localhost:8080)

EXAMPLES:
  simulator seed --users=5 --posts=20
  simulator check --timeout=10s`)
}

func seedCmd(apiURL string, args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	users := fs.Int("users", 3, "Number of users to register")
	posts := fs.Int("posts", 5, "Posts per user")
	fs.Parse(args)

	client := NewAPIClient(apiURL)

	fmt.Printf("Seeding %d users with %d posts each:\n\n", *users, *posts)
	for i := 0; i < *users; i++ {
		auth, err := client.RegisterUser(fmt.Sprintf("user%d", i+1))
		if err != nil {
			fmt.Printf("  [%d/%d] FAILED to create user: %v\n", i+1, *users, err)
			os.Exit(1)
		}

		for j := 0; j < *posts; j++ {
			content := fmt.Sprintf("post %d from %s", j+1, auth.User.Username)
			if _, err := client.CreatePost(auth.AccessToken, content); err != nil {
				fmt.Printf("  [%d/%d] FAILED to create post: %v\n", i+1, *users, err)
				os.Exit(1)
			}
		}
		fmt.Printf("  [%d/%d] %s published %d posts\n", i+1, *users, auth.User.Username, *posts)
	}
	fmt.Println("\nDone!")
}

func checkCmd(apiURL string, args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	timeout := fs.Duration("timeout", 10*time.Second, "How long to wait for the search projection to converge")
	fs.Parse(args)

	client := NewAPIClient(apiURL)
	failed := false
	step := func(name string, err error) {
		if err != nil {
			failed = true
			fmt.Printf("  %-40s FAILED\n    %v\n", name, err)
			return
		}
		fmt.Printf("  %-40s OK\n", name)
	}

	fmt.Println("=== Consistency check ===")
	fmt.Println()

	auth, err := client.RegisterUser("checker")
	step("register", err)
	if err != nil {
		os.Exit(1)
	}

	marker := "probe-" + uuid.NewString()[:8]
	post, err := client.CreatePost(auth.AccessToken, "consistency "+marker)
	step("create post", err)
	if err != nil {
		os.Exit(1)
	}

	step("author sees post in first page", expectListed(client, auth.AccessToken, post.ID, true))
	step("search projection picks post up", waitFor(*timeout, func() (bool, error) {
		return searchHas(client, auth.AccessToken, marker, post.ID)
	}))

	step("delete post", client.DeletePost(auth.AccessToken, post.ID))
	step("author no longer sees post", expectListed(client, auth.AccessToken, post.ID, false))
	step("search projection drops post", waitFor(*timeout, func() (bool, error) {
		found, err := searchHas(client, auth.AccessToken, marker, post.ID)
		return !found, err
	}))

	rotated, err := client.Refresh(auth.RefreshToken)
	step("rotate refresh token", err)
	_, err = client.Refresh(auth.RefreshToken)
	step("replayed refresh token is rejected", expectStatus(err, http.StatusUnauthorized))
	if rotated != nil {
		step("logout", client.Logout(rotated.RefreshToken))
		_, err = client.Refresh(rotated.RefreshToken)
		step("revoked refresh token is rejected", expectStatus(err, http.StatusUnauthorized))
	}

	fmt.Println()
	if failed {
		fmt.Println("Check FAILED")
		os.Exit(1)
	}
	fmt.Println("Check passed")
}

func expectListed(client *APIClient, token, postID string, want bool) error {
	list, err := client.ListPosts(token, 1, 10)
	if err != nil {
		return err
	}
	found := false
	for _, p := range list.Posts {
		if p.ID == postID {
			found = true
			break
		}
	}
	if found != want {
		return fmt.Errorf("post %s listed=%v, want %v", postID, found, want)
	}
	return nil
}

func searchHas(client *APIClient, token, query, postID string) (bool, error) {
	results, err := client.Search(token, query, 10)
	if err != nil {
		return false, err
	}
	for _, r := range results {
		if r.PostID == postID {
			return true, nil
		}
	}
	return false, nil
}

func waitFor(timeout time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %s", timeout)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func expectStatus(err error, status int) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Status == status {
		return nil
	}
	if err == nil {
		return fmt.Errorf("request succeeded, want status %d", status)
	}
	return fmt.Errorf("want status %d, got: %w", status, err)
}
