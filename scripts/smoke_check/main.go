package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/noah-isme/sma-lms-api/pkg/lmsclient"
)

type step struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) (string, error)
}

type result struct {
	Step     step
	Detail   string
	Error    error
	Duration time.Duration
}

func main() {
	var (
		baseURL   string
		email     string
		password  string
		studentID string
		timeout   time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080/api/v1", "LMS API base URL")
	flag.StringVar(&email, "email", os.Getenv("SMOKE_EMAIL"), "Admin email")
	flag.StringVar(&password, "password", os.Getenv("SMOKE_PASSWORD"), "Admin password")
	flag.StringVar(&studentID, "student", "", "Student whose fee catalog is checked (optional)")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	if email == "" || password == "" {
		log.Fatal("email and password are required")
	}

	ctx := context.Background()
	anon, err := lmsclient.New(baseURL, lmsclient.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		log.Fatalf("failed to build client: %v", err)
	}
	login, err := anon.Login(ctx, email, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}
	client, err := lmsclient.New(baseURL,
		lmsclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		lmsclient.WithToken(login.AccessToken),
	)
	if err != nil {
		log.Fatalf("failed to build client: %v", err)
	}

	var sessionID string
	steps := []step{
		{Name: "active session", Critical: true, Run: func(ctx context.Context) (string, error) {
			session, err := client.ActiveSession(ctx)
			if err != nil {
				return "", err
			}
			sessionID = session.ID
			return session.Name, nil
		}},
		{Name: "promotion records", Critical: false, Run: func(ctx context.Context) (string, error) {
			if sessionID == "" {
				return "", errors.New("no active session")
			}
			list, err := client.ListPromotions(ctx, sessionID)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d records, %d pending", len(list.Records), list.Summary.Pending), nil
		}},
	}
	if studentID != "" {
		steps = append(steps, step{Name: "fee catalog", Critical: true, Run: func(ctx context.Context) (string, error) {
			if sessionID == "" {
				return "", errors.New("no active session")
			}
			catalog, err := client.AwaitFeeCatalog(ctx, studentID, sessionID, lmsclient.DefaultAwaitOptions)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d months, %.2f pending, %.2f overdue", len(catalog.Fees), catalog.TotalPending, catalog.TotalOverdue), nil
		}})
	}

	var (
		results  []result
		breaking int
	)
	for _, s := range steps {
		res := runStep(ctx, s, timeout)
		if res.Error != nil && s.Critical {
			breaking++
		}
		results = append(results, res)
	}

	printReport(results)

	fmt.Printf("Critical failures: %d\n", breaking)
	if breaking > 0 {
		os.Exit(1)
	}
}

func runStep(parent context.Context, s step, timeout time.Duration) result {
	// Catalog polling backs off between attempts, so allow headroom past a single request.
	ctx, cancel := context.WithTimeout(parent, 4*timeout+time.Minute)
	defer cancel()

	start := time.Now()
	detail, err := s.Run(ctx)
	return result{Step: s, Detail: detail, Error: err, Duration: time.Since(start)}
}

func printReport(results []result) {
	fmt.Println("Smoke Check Report")
	fmt.Println("==================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s (%s)\n", status, res.Step.Name, res.Duration)
		if res.Error != nil {
			fmt.Printf("  Error: %v (kind %s) | Critical: %t\n", res.Error, lmsclient.KindOf(res.Error), res.Step.Critical)
		} else {
			fmt.Printf("  %s\n", res.Detail)
		}
	}
}
