package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/export"
	"github.com/meikuraledutech/flow/memory"
	"github.com/meikuraledutech/flow/postgres"
)

func main() {
	ctx := context.Background()

	// Postgres when DATABASE_URL is set, memory otherwise.
	var store flow.Store = memory.New()
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer pool.Close()
		store = postgres.New(pool)
	}

	// 1. Create tables
	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema created")

	// ── Build a canvas ────────────────────────────────────────────────
	sess := flow.NewSession(nil)

	process := mustAdd(sess, flow.NewProcessNode("", flow.ProcessData{
		Name:        "Onboarding",
		Slug:        "onboarding",
		InputFormat: `{"email": "string"}`,
	}))
	create := mustAdd(sess, flow.NewTaskNode("", flow.TaskData{Name: "Create account", Slug: "create-account"}))
	welcome := mustAdd(sess, flow.NewTaskNode("", flow.TaskData{Name: "Send welcome mail", Slug: "send-welcome"}))
	grant := mustAdd(sess, flow.NewTaskNode("", flow.TaskData{Name: "Grant access", Slug: "grant-access"}))

	// ── Connect: process → create → {welcome, grant} ──────────────────
	for _, pair := range [][2]flow.Node{{process, create}, {create, welcome}, {create, grant}} {
		res := sess.OnEdgeConnect(pair[0].ID, pair[1].ID)
		if !res.Accepted {
			log.Fatalf("connect %s → %s: %s", pair[0].Slug(), pair[1].Slug(), res.Reason)
		}
	}

	// A dependency back into the process entry is refused.
	res := sess.OnEdgeConnect(grant.ID, create.ID)
	fmt.Printf("grant-access → create-account accepted=%v reason=%q\n", res.Accepted, res.Reason)

	// ── Export ────────────────────────────────────────────────────────
	b, err := export.Build(sess.State(), flow.ExportOptions{})
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	fmt.Println("\nexecution order:", b.Order)
	fmt.Println("\nprocess template:")
	printJSON(b.Process)
	fmt.Printf("\n%s:\n%s\n", export.FileName, b.CSV)

	// ── Save and reload ───────────────────────────────────────────────
	t := flow.TemplateFrom(sess.State(), "onboarding", "Onboarding")
	saved, err := store.SaveTemplate(ctx, &t)
	if err != nil {
		log.Fatalf("save: %v", err)
	}
	fmt.Printf("\nsaved template %s (%d nodes, %d edges)\n", saved.ID, saved.Metadata.NodeCount, saved.Metadata.EdgeCount)

	loaded, err := store.GetTemplate(ctx, "onboarding")
	if err != nil {
		log.Fatalf("get: %v", err)
	}
	reopened := flow.NewSession(nil)
	if err := reopened.LoadTemplate(*loaded); err != nil {
		log.Fatalf("load: %v", err)
	}
	fmt.Printf("reloaded: %d nodes, can export=%v\n", reopened.State().Len(), reopened.CanExport())

	// ── Cleanup ───────────────────────────────────────────────────────
	if err := store.DeleteTemplate(ctx, "onboarding"); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("template deleted")
}

func mustAdd(sess *flow.Session, n flow.Node) flow.Node {
	added, err := sess.AddNode(n)
	if err != nil {
		log.Fatalf("add %s: %v", n.Slug(), err)
	}
	return added
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
