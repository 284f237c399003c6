package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"curia.org/internal/audit"
	"curia.org/internal/authn"
	"curia.org/internal/ids"
	"curia.org/internal/registry"
	"curia.org/internal/store/pg"
)

// bootstrap provisions circles and user profiles directly against the
// database. The HTTP API deliberately has no endpoint for either: circles are
// organizational structure and profiles carry credentials, so both are
// created out of band by an operator. Every action still lands in the audit
// trail, recorded without a user id.
func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		log.Fatal("usage: bootstrap [circle|profile] -h")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "circle":
		err = runCircle(ctx, os.Args[2:])
	case "profile":
		err = runProfile(ctx, os.Args[2:])
	default:
		log.Fatalf("unknown command %q, want circle or profile", os.Args[1])
	}
	if err != nil {
		log.Fatalf("bootstrap %s: %v", os.Args[1], err)
	}
}

func runCircle(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("circle", flag.ExitOnError)
	var (
		dsn  = fs.String("dsn", os.Getenv("CURIA_DB_DSN"), "PostgreSQL DSN")
		id   = fs.String("id", "", "Circle ID (generated when empty)")
		name = fs.String("name", "", "Circle name")
		desc = fs.String("desc", "", "Circle description")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	store, trail, closeFn, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	circle := &registry.Circle{
		ID:          *id,
		Name:        *name,
		Description: *desc,
		CreatedAt:   time.Now().UTC(),
	}
	if circle.ID == "" {
		circle.ID = ids.New()
	}
	if err := store.Circles(ctx).Create(ctx, circle); err != nil {
		return err
	}
	recordBootstrap(ctx, trail, "circle.create", "circle", circle.ID, map[string]string{
		"name": circle.Name,
	})

	fmt.Printf("circle %s (%s) created\n", circle.ID, circle.Name)
	return nil
}

func runProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	var (
		dsn      = fs.String("dsn", os.Getenv("CURIA_DB_DSN"), "PostgreSQL DSN")
		id       = fs.String("id", "", "Profile ID (generated when empty)")
		employee = fs.String("employee", "", "Employee ID used to sign in")
		name     = fs.String("name", "", "Full name")
		role     = fs.String("role", "", "Role: judge, clerk or trainee")
		circleID = fs.String("circle", "", "Home circle ID")
		password = fs.String("password", "", "Initial password (prompted when empty)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *employee == "" || *name == "" || *circleID == "" {
		return fmt.Errorf("-employee, -name and -circle are required")
	}
	if !registry.Role(*role).Valid() {
		return fmt.Errorf("invalid role %q, want judge, clerk or trainee", *role)
	}

	secret := *password
	if secret == "" {
		var err error
		secret, err = promptPassword()
		if err != nil {
			return err
		}
	}
	if len(secret) < authn.MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", authn.MinPasswordLen)
	}

	store, trail, closeFn, err := openStore(*dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := store.Circles(ctx).Find(ctx, *circleID); err != nil {
		return fmt.Errorf("home circle %s: %w", *circleID, err)
	}
	hash, err := authn.HashPassword(secret)
	if err != nil {
		return err
	}

	profile := &registry.UserProfile{
		ID:           *id,
		FullName:     *name,
		Role:         registry.Role(*role),
		HomeCircleID: *circleID,
		EmployeeID:   *employee,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if profile.ID == "" {
		profile.ID = ids.New()
	}
	if err := store.Profiles(ctx).Create(ctx, profile); err != nil {
		return err
	}
	recordBootstrap(ctx, trail, "profile.create", "profile", profile.ID, map[string]string{
		"employee_id":    profile.EmployeeID,
		"role":           string(profile.Role),
		"home_circle_id": profile.HomeCircleID,
	})

	fmt.Printf("profile %s (%s, %s) created in circle %s\n", profile.ID, profile.EmployeeID, profile.Role, profile.HomeCircleID)
	return nil
}

func openStore(dsn string) (registry.Store, audit.Store, func(), error) {
	if dsn == "" {
		return nil, nil, nil, fmt.Errorf("missing DSN: provide via -dsn or CURIA_DB_DSN")
	}
	pgStore, err := pg.Open(dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	return pgStore, pgStore.Audit(), func() { _ = pgStore.Close() }, nil
}

// recordBootstrap writes a trail entry with no user id. Provisioning happens
// before any principal exists, so the subject column stays null.
func recordBootstrap(ctx context.Context, trail audit.Store, action, resourceType, resourceID string, details map[string]string) {
	recorder := audit.NewRecorder(trail)
	entry := audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
	if _, err := recorder.Record(ctx, entry); err != nil {
		log.Printf("warning: audit entry not recorded: %v", err)
	}
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
