package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// CheckOptions configures CheckConnectivity.
type CheckOptions struct {
	Region      string
	EndpointURL string
	Out         io.Writer        // progress log, defaults to io.Discard
	Now         func() time.Time // clock, defaults to time.Now
}

// CheckReport summarizes a connectivity check.
type CheckReport struct {
	Buckets       int
	BucketCreated bool
	ObjectCount   int
	WriteOK       bool
	TestKey       string
}

// CheckConnectivity verifies that credentials work and the bucket is usable:
// it lists buckets, ensures the bucket exists (creating it when missing),
// lists a few objects, then writes and deletes a small test object.
//
// A failed write is reported but does not fail the check, since a read-only
// bucket is still reachable.
func CheckConnectivity(ctx context.Context, store AdminStore, opts CheckOptions) (*CheckReport, error) {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "S3 Connectivity Test")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "Timestamp: %s\n", now().Format(time.RFC3339))
	fmt.Fprintf(out, "Target Bucket: %s\n", store.Bucket())
	fmt.Fprintf(out, "Region: %s\n", opts.Region)
	if opts.EndpointURL != "" {
		fmt.Fprintf(out, "Endpoint URL: %s\n", opts.EndpointURL)
	}
	fmt.Fprintln(out, strings.Repeat("-", 60))

	report := &CheckReport{}

	fmt.Fprintln(out, "\n[Test 1] Verifying credentials...")
	buckets, err := store.ListBuckets(ctx)
	if err != nil {
		return report, fmt.Errorf("listing buckets: %w", err)
	}
	report.Buckets = len(buckets)
	fmt.Fprintf(out, "OK: credentials valid, found %d buckets\n", len(buckets))

	fmt.Fprintf(out, "\n[Test 2] Checking bucket %q...\n", store.Bucket())
	exists, err := store.BucketExists(ctx)
	switch {
	case errors.Is(err, ErrAccessDenied):
		return report, fmt.Errorf("access denied to bucket %q: %w", store.Bucket(), err)
	case err != nil:
		return report, fmt.Errorf("checking bucket: %w", err)
	case exists:
		fmt.Fprintf(out, "OK: bucket %q exists and is accessible\n", store.Bucket())
	default:
		fmt.Fprintf(out, "WARN: bucket %q does not exist, creating it...\n", store.Bucket())
		if err := store.CreateBucket(ctx); err != nil {
			return report, fmt.Errorf("creating bucket: %w", err)
		}
		report.BucketCreated = true
		fmt.Fprintf(out, "OK: bucket %q created\n", store.Bucket())
	}

	fmt.Fprintf(out, "\n[Test 3] Listing objects in %q...\n", store.Bucket())
	objects, err := store.List(ctx, "", 10)
	if err != nil {
		return report, fmt.Errorf("listing objects: %w", err)
	}
	report.ObjectCount = len(objects)
	fmt.Fprintf(out, "OK: found %d objects (showing max 10)\n", len(objects))
	for i, obj := range objects {
		if i == 5 {
			break
		}
		fmt.Fprintf(out, "   - %s (%d bytes)\n", obj.Key, obj.Size)
	}

	fmt.Fprintln(out, "\n[Test 4] Testing write access...")
	ts := now()
	report.TestKey = fmt.Sprintf("_test/connectivity_test_%s.txt", ts.Format("20060102_150405"))
	body := fmt.Sprintf("Connectivity test at %s", ts.Format(time.RFC3339))
	if err := store.Put(ctx, report.TestKey, strings.NewReader(body), int64(len(body)), "text/plain"); err != nil {
		fmt.Fprintf(out, "WARN: write test failed: %v\n", err)
		fmt.Fprintln(out, "  (this may be expected if the bucket is read-only)")
	} else {
		fmt.Fprintf(out, "OK: wrote test file %s\n", report.TestKey)
		if err := store.Delete(ctx, report.TestKey); err != nil {
			fmt.Fprintf(out, "WARN: cleanup failed: %v\n", err)
		} else {
			fmt.Fprintln(out, "OK: cleaned up test file")
		}
		report.WriteOK = true
	}

	fmt.Fprintln(out, "\n"+rule)
	fmt.Fprintln(out, "S3 CONNECTIVITY TEST PASSED")
	fmt.Fprintln(out, rule)
	return report, nil
}
