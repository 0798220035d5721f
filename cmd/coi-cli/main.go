package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/davidahmann/coitrack/pkg/client"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "list":
		return handleList(args[2:], stdout, stderr)
	case "counts":
		return handleCounts(args[2:], stdout, stderr)
	case "approve":
		return handleApprove(args[2:], stdout, stderr)
	case "reject":
		return handleReject(args[2:], stdout, stderr)
	case "upload":
		return handleUpload(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

type common struct {
	addr    *string
	token   *string
	jsonOut *bool
	timeout *time.Duration
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs, common{
		addr:    fs.String("addr", envOrDefault("COI_ADDR", defaultAddr), "COI API address"),
		token:   fs.String("token", envOrDefault("COI_TOKEN", os.Getenv("COI_DEV_TOKEN")), "bearer token"),
		jsonOut: fs.Bool("json", false, "print raw JSON response"),
		timeout: fs.Duration("timeout", 30*time.Second, "request timeout"),
	}
}

func (c common) client() *client.Client {
	return client.New(*c.addr, *c.token)
}

func (c common) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), *c.timeout)
}

func handleList(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, c := newFlagSet("list", stderr)
	vendor := fs.String("vendor", "", "filter by vendor id")
	building := fs.String("building", "", "filter by building id")
	status := fs.String("status", "", "filter by status")
	bucket := fs.String("bucket", "", "filter by bucket (pending, approved, non_compliant, expiring_soon, expired)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := c.requestContext()
	defer cancel()
	docs, err := c.client().ListDocuments(ctx, client.ListOptions{VendorID: *vendor, BuildingID: *building, Status: *status, Bucket: *bucket})
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *c.jsonOut {
		return printJSON(stdout, stderr, docs)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVENDOR\tBUILDING\tSTATUS\tCOMPLIANCE\tEXPIRES")
	for _, doc := range docs {
		expires := "-"
		if doc.EarliestExpiration != nil {
			expires = doc.EarliestExpiration.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\n", doc.ID, doc.Vendor.Name, doc.Building.Name, doc.Status, doc.CompliancePercentage, expires)
	}
	_ = tw.Flush()
	return 0
}

func handleCounts(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, c := newFlagSet("counts", stderr)
	vendor := fs.String("vendor", "", "filter by vendor id")
	building := fs.String("building", "", "filter by building id")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := c.requestContext()
	defer cancel()
	counts, err := c.client().Counts(ctx, client.ListOptions{VendorID: *vendor, BuildingID: *building})
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *c.jsonOut {
		return printJSON(stdout, stderr, counts)
	}
	fmt.Fprintf(stdout, "all=%d pending=%d approved=%d non_compliant=%d expiring_soon=%d expired=%d\n",
		counts.All, counts.Pending, counts.Approved, counts.NonCompliant, counts.ExpiringSoon, counts.Expired)
	return 0
}

func handleApprove(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, c := newFlagSet("approve", stderr)
	override := fs.String("override", "", "override reason, required when compliance checks failed")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "approve requires <document_id>")
		fs.Usage()
		return 2
	}

	ctx, cancel := c.requestContext()
	defer cancel()
	doc, err := c.client().Approve(ctx, fs.Arg(0), *override)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *c.jsonOut {
		return printJSON(stdout, stderr, doc)
	}
	fmt.Fprintf(stdout, "approved document_id=%s reviewer=%s\n", doc.ID, doc.ReviewerName)
	return 0
}

func handleReject(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, c := newFlagSet("reject", stderr)
	reason := fs.String("reason", "", "rejection reason")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || *reason == "" {
		fmt.Fprintln(stderr, "reject requires <document_id> and --reason")
		fs.Usage()
		return 2
	}

	ctx, cancel := c.requestContext()
	defer cancel()
	doc, err := c.client().Reject(ctx, fs.Arg(0), *reason)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *c.jsonOut {
		return printJSON(stdout, stderr, doc)
	}
	fmt.Fprintf(stdout, "rejected document_id=%s reviewer=%s\n", doc.ID, doc.ReviewerName)
	return 0
}

func handleUpload(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, c := newFlagSet("upload", stderr)
	vendor := fs.String("vendor", "", "vendor id")
	building := fs.String("building", "", "building id")
	template := fs.String("template", "", "requirement template id")
	document := fs.String("document", "", "existing pending document id")
	wait := fs.Bool("wait", false, "wait for verification to finish")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || *vendor == "" || *building == "" {
		fmt.Fprintln(stderr, "upload requires <file> --vendor ID --building ID")
		fs.Usage()
		return 2
	}

	path := fs.Arg(0)
	// #nosec G304 -- path is provided by the operator.
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stderr, "read file:", err)
		return 1
	}

	ctx, cancel := c.requestContext()
	defer cancel()
	res, err := c.client().Upload(ctx, client.Upload{
		VendorID:   *vendor,
		BuildingID: *building,
		TemplateID: *template,
		DocumentID: *document,
		FileName:   filepath.Base(path),
		Data:       data,
		Wait:       *wait,
	})
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *c.jsonOut {
		return printJSON(stdout, stderr, res)
	}
	fmt.Fprintf(stdout, "document_id=%s status=%s verification_id=%s verification=%s compliance=%d%%\n",
		res.Document.ID, res.Document.Status, res.Verification.ID, res.Verification.Status, res.Document.CompliancePercentage)
	return 0
}

func printJSON(stdout io.Writer, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(stderr, "encode:", err)
		return 1
	}
	return 0
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `COI CLI

Usage:
  coi list [--vendor ID] [--building ID] [--status STATUS] [--bucket BUCKET] [--json]
  coi counts [--vendor ID] [--building ID] [--json]
  coi approve <document_id> [--override REASON]
  coi reject <document_id> --reason REASON
  coi upload <file> --vendor ID --building ID [--template ID] [--document ID] [--wait]

Common flags: --addr URL (COI_ADDR), --token TOKEN (COI_TOKEN), --timeout 30s
`)
}
