package transcribe

import (
	"testing"

	"github.com/scribelabs/scribe-core/internal/asr"
	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/protocol"
)

func TestDecodeConfigMergesOverrides(t *testing.T) {
	svc := &Service{cfg: config.Default()}

	base := svc.decodeConfig(protocol.AudioJob{})
	if base.Language != "auto" || base.Threads != 4 || base.BeamWidth != 5 {
		t.Fatalf("expected daemon defaults, got %+v", base)
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("merged defaults must validate: %v", err)
	}

	merged := svc.decodeConfig(protocol.AudioJob{
		Language:         "fr",
		InitialPrompt:    "bonjour",
		Translate:        true,
		OffsetMS:         500,
		DurationMS:       2000,
		MaxSegmentLength: 60,
	})
	if merged.Language != "fr" || merged.InitialPrompt != "bonjour" {
		t.Fatalf("expected job overrides, got %+v", merged)
	}
	if !merged.Translate || merged.OffsetMS != 500 || merged.DurationMS != 2000 {
		t.Fatalf("expected window overrides, got %+v", merged)
	}
	if merged.MaxSegmentLength != 60 {
		t.Fatalf("expected max segment length 60, got %d", merged.MaxSegmentLength)
	}
	if merged.Threads != 4 {
		t.Fatalf("job payloads must not control thread count, got %d", merged.Threads)
	}
}

func TestRegisterTokenRejectsActiveJobID(t *testing.T) {
	svc := &Service{tokens: make(map[string]*asr.CancelToken)}

	first, ok := svc.registerToken("job-1")
	if !ok || first == nil {
		t.Fatal("expected first registration to succeed")
	}
	if _, ok := svc.registerToken("job-1"); ok {
		t.Fatal("expected duplicate registration to be refused")
	}

	// A cancel must keep targeting the first run's token.
	first.Request()
	if !first.Requested() {
		t.Fatal("expected the original token to carry the cancel")
	}

	svc.unregisterToken("job-1")
	if _, ok := svc.registerToken("job-1"); !ok {
		t.Fatal("expected the id to be reusable once the run finished")
	}
}

func TestJobSubjects(t *testing.T) {
	if got := protocol.JobSubject("abc"); got != "transcribe.job.abc" {
		t.Fatalf("unexpected job subject %q", got)
	}
	if got := protocol.CancelSubject("abc"); got != "transcribe.cancel.abc" {
		t.Fatalf("unexpected cancel subject %q", got)
	}
	if got := protocol.ResultSubject("abc"); got != "transcribe.result.abc" {
		t.Fatalf("unexpected result subject %q", got)
	}
}
