package uas_test

import (
	"testing"

	"github.com/ghettovoice/gosip/app"
	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/uas"
)

func newTestResponse(t *testing.T, status sip.StatusCode, toTag string) *sip.Response {
	t.Helper()
	uri := &sip.URI{Scheme: "sip", Host: "example.com", UParams: sip.NewParams(), Headers: sip.NewParams()}
	to := (*sip.ToHeader)(&sip.Address{URI: uri, Params: sip.NewParams().Set("tag", sip.String{Str: toTag})})
	from := (*sip.FromHeader)(&sip.Address{URI: uri, Params: sip.NewParams().Set("tag", sip.String{Str: "from-tag"})})
	return sip.NewResponse(status, "", "", []sip.Header{
		to, from, sip.CallID("call-1"), &sip.CSeq{SeqNo: 1, Method: sip.MethodInvite},
	}, nil)
}

func TestDialogRegistry_CreateEarlyIsIdempotent(t *testing.T) {
	t.Parallel()

	reg := uas.NewDialogRegistry()
	res := newTestResponse(t, sip.StatusRinging, "to-tag")

	d1, err := reg.CreateEarly(res)
	if err != nil {
		t.Fatalf("CreateEarly() error = %v, want nil", err)
	}
	if got := d1.State(); got != uas.DialogStateEarly {
		t.Fatalf("d1.State() = %v, want DialogStateEarly", got)
	}

	d2, err := reg.CreateEarly(res)
	if err != nil {
		t.Fatalf("CreateEarly() (second call) error = %v, want nil", err)
	}
	if d1 != d2 {
		t.Errorf("CreateEarly() returned a distinct dialog on the second call for the same response")
	}
	if reg.Size() != 1 {
		t.Errorf("reg.Size() = %d, want 1", reg.Size())
	}
}

func TestDialogRegistry_ConfirmAndTerminate(t *testing.T) {
	t.Parallel()

	reg := uas.NewDialogRegistry()
	res := newTestResponse(t, sip.StatusOK, "to-tag")

	d, err := reg.CreateEarly(res)
	if err != nil {
		t.Fatalf("CreateEarly() error = %v, want nil", err)
	}

	reg.Confirm(d.ID)
	if got := d.State(); got != uas.DialogStateConfirmed {
		t.Errorf("d.State() after Confirm() = %v, want DialogStateConfirmed", got)
	}

	reg.Terminate(d.ID)
	if got := d.State(); got != uas.DialogStateTerminated {
		t.Errorf("d.State() after Terminate() = %v, want DialogStateTerminated", got)
	}
	if reg.Size() != 0 {
		t.Errorf("reg.Size() after Terminate() = %d, want 0", reg.Size())
	}
}

func TestDialogRegistry_Lookup(t *testing.T) {
	t.Parallel()

	reg := uas.NewDialogRegistry()
	res := newTestResponse(t, sip.StatusOK, "to-tag")
	if _, err := reg.CreateEarly(res); err != nil {
		t.Fatalf("CreateEarly() error = %v, want nil", err)
	}

	uri := &sip.URI{Scheme: "sip", Host: "example.com", UParams: sip.NewParams(), Headers: sip.NewParams()}
	to := (*sip.ToHeader)(&sip.Address{URI: uri, Params: sip.NewParams().Set("tag", sip.String{Str: "to-tag"})})
	from := (*sip.FromHeader)(&sip.Address{URI: uri, Params: sip.NewParams().Set("tag", sip.String{Str: "from-tag"})})
	bye := sip.NewRequest(sip.MethodBye, uri, "", []sip.Header{
		to, from, sip.CallID("call-1"), &sip.CSeq{SeqNo: 2, Method: sip.MethodBye},
	}, nil)

	if _, found := reg.Lookup(bye); !found {
		t.Errorf("Lookup() found = false, want true for a matching in-dialog request")
	}
}

func TestStatusForErrorKind(t *testing.T) {
	t.Parallel()

	tests := map[uas.DialogState]string{
		uas.DialogStateEarly:      "early",
		uas.DialogStateConfirmed:  "confirmed",
		uas.DialogStateTerminated: "terminated",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("DialogState(%d).String() = %q, want %q", state, got, want)
		}
	}

	if got := uas.StatusForErrorKind(app.ErrorKindForbidden); got != sip.StatusForbidden {
		t.Errorf("StatusForErrorKind(Forbidden) = %v, want StatusForbidden", got)
	}
	if got := uas.StatusForErrorKind(app.ErrorKind(999)); got != sip.StatusInternalServerError {
		t.Errorf("StatusForErrorKind(unknown) = %v, want StatusInternalServerError", got)
	}
}
