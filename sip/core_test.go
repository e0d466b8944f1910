package sip_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/gosip/sip"
)

func TestGenerateBranch(t *testing.T) {
	t.Parallel()

	a := sip.GenerateBranch()
	b := sip.GenerateBranch()

	if !strings.HasPrefix(a, sip.RFC3261BranchMagicCookie) {
		t.Fatalf("GenerateBranch() = %q, want prefix %q", a, sip.RFC3261BranchMagicCookie)
	}
	if a == b {
		t.Fatalf("GenerateBranch() returned the same value twice: %q", a)
	}
}

func TestGenerateTag(t *testing.T) {
	t.Parallel()

	a := sip.GenerateTag()
	b := sip.GenerateTag()

	if len(a) != 10 {
		t.Fatalf("GenerateTag() = %q, want length 10", a)
	}
	if a == b {
		t.Fatalf("GenerateTag() returned the same value twice: %q", a)
	}
}

func TestDialogID(t *testing.T) {
	t.Parallel()

	got := sip.DialogID("call-1", "local-tag", "remote-tag")
	want := "call-1__local-tag__remote-tag"
	if got != want {
		t.Errorf("DialogID() = %q, want %q", got, want)
	}
}

func TestMakeDialogIDFromMessage(t *testing.T) {
	t.Parallel()

	newReq := func(toTag, fromTag string) *sip.Request {
		toParams := sip.NewParams()
		if toTag != "" {
			toParams = toParams.Set("tag", sip.String{Str: toTag})
		}
		fromParams := sip.NewParams()
		if fromTag != "" {
			fromParams = fromParams.Set("tag", sip.String{Str: fromTag})
		}
		uri := &sip.URI{Scheme: "sip", Host: "example.com", UParams: sip.NewParams(), Headers: sip.NewParams()}
		to := (*sip.ToHeader)(&sip.Address{URI: uri, Params: toParams})
		from := (*sip.FromHeader)(&sip.Address{URI: uri, Params: fromParams})
		return sip.NewRequest(sip.MethodInvite, uri, "", []sip.Header{
			to, from, sip.CallID("call-1"),
		}, nil)
	}

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		req := newReq("to-tag", "from-tag")
		got, err := sip.MakeDialogIDFromMessage(req)
		if err != nil {
			t.Fatalf("MakeDialogIDFromMessage() error = %v, want nil", err)
		}
		want := "call-1__to-tag__from-tag"
		if got != want {
			t.Errorf("MakeDialogIDFromMessage() = %q, want %q", got, want)
		}
	})

	t.Run("missing To tag", func(t *testing.T) {
		t.Parallel()

		req := newReq("", "from-tag")
		_, err := sip.MakeDialogIDFromMessage(req)
		if diff := cmp.Diff(err, sip.ErrInvalidArgument, cmpopts.EquateErrors()); diff != "" {
			t.Errorf("MakeDialogIDFromMessage() error diff (-got +want):\n%s", diff)
		}
	})
}

func TestDefaultPort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		protocol string
		want     sip.Port
	}{
		{"UDP", sip.DefaultUDPPort},
		{"udp", sip.DefaultUDPPort},
		{"TCP", sip.DefaultTCPPort},
		{"TLS", sip.DefaultTLSPort},
		{"", sip.DefaultUDPPort},
	}
	for _, tt := range tests {
		if got := sip.DefaultPort(tt.protocol); got != tt.want {
			t.Errorf("DefaultPort(%q) = %v, want %v", tt.protocol, got, tt.want)
		}
	}
}
