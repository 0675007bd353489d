package cdplog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDumpWritesTranscript(t *testing.T) {
	dir := t.TempDir()
	l := &Logger{}
	l.redirects = append(l.redirects,
		RedirectEvent{When: "before", URL: "https://a/", Reason: "scriptInitiated", LoaderID: "f1"},
		RedirectEvent{When: "after", URL: "https://b/", LoaderID: "l1"},
	)
	post := "a=1&b=2"
	l.requests = append(l.requests, RequestEvent{ID: "r1", URL: "https://b/", Method: "POST", PostData: &post})
	l.evalScripts = append(l.evalScripts, EvalScript{ScriptID: "s1", Length: 500, First200: "var x=1;"})

	if err := l.Dump(dir, "https://b/"); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "cdp_log.json"))
	if err != nil {
		t.Fatal(err)
	}
	var tr Transcript
	if err := json.Unmarshal(raw, &tr); err != nil {
		t.Fatal(err)
	}
	if len(tr.Redirects) != 2 || len(tr.Requests) != 1 || len(tr.EvalScripts) != 1 {
		t.Errorf("transcript = %+v", tr)
	}
	if tr.Requests[0].PostData == nil || *tr.Requests[0].PostData != post {
		t.Error("POST body lost")
	}
	if tr.Metadata["page_url"] != "https://b/" {
		t.Errorf("metadata = %v", tr.Metadata)
	}
	if tr.Metadata["total_requests"].(float64) != 1 {
		t.Errorf("metadata counts = %v", tr.Metadata)
	}
}

func TestDumpEmptyTranscript(t *testing.T) {
	dir := t.TempDir()
	l := &Logger{}
	if err := l.Dump(dir, "<closed>"); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, "cdp_log.json"))
	var tr Transcript
	if err := json.Unmarshal(raw, &tr); err != nil {
		t.Fatal(err)
	}
	// empty slices serialize as [], not null
	if tr.Redirects == nil || tr.Requests == nil || tr.EvalScripts == nil {
		t.Error("Empty transcript fields must be arrays")
	}
	if tr.Metadata["page_url"] != "<closed>" {
		t.Errorf("page_url = %v", tr.Metadata["page_url"])
	}
}
