package authstate

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/courtside/internal/flags"
	"github.com/dukerupert/courtside/internal/model"
)

func TestSubscribeOnce(t *testing.T) {
	e := NewEmitter()
	noop := func(context.Context, Change) Outcome { return Outcome{} }

	if err := e.Subscribe(noop); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if err := e.Subscribe(noop); !errors.Is(err, ErrAlreadySubscribed) {
		t.Errorf("second subscribe err = %v, want %v", err, ErrAlreadySubscribed)
	}
}

func TestEmitWithoutSubscriber(t *testing.T) {
	_, err := NewEmitter().Emit(context.Background(), SignedOut())
	if !errors.Is(err, ErrNoSubscriber) {
		t.Errorf("err = %v, want %v", err, ErrNoSubscriber)
	}
}

func TestEmitDeliversChange(t *testing.T) {
	e := NewEmitter()
	var got []Change
	e.Subscribe(func(_ context.Context, ch Change) Outcome {
		got = append(got, ch)
		if ch.State == Authenticated {
			return Outcome{Location: "/sports?mode=host", Flags: flags.Flags{IsHost: true, Mode: flags.ModeHost}}
		}
		return Outcome{Flags: flags.Guest}
	})

	u := &model.User{UID: "uid-1"}
	out, err := e.Emit(context.Background(), SignedIn(u, "tok"))
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if out.Location != "/sports?mode=host" {
		t.Errorf("location = %q, want %q", out.Location, "/sports?mode=host")
	}

	out, err = e.Emit(context.Background(), SignedOut())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if out.Location != "" || out.Flags != flags.Guest {
		t.Errorf("outcome = %+v, want sign-in view as guest", out)
	}

	if len(got) != 2 || got[0].User != u || got[0].Token != "tok" || got[1].State != Anonymous {
		t.Errorf("changes = %+v", got)
	}
}

func TestEmitRejectsInvalidChange(t *testing.T) {
	e := NewEmitter()
	e.Subscribe(func(context.Context, Change) Outcome {
		t.Fatal("subscriber must not run")
		return Outcome{}
	})

	for _, ch := range []Change{{State: Unknown}, {State: Authenticated}} {
		if _, err := e.Emit(context.Background(), ch); !errors.Is(err, ErrInvalidChange) {
			t.Errorf("Emit(%v) err = %v, want %v", ch.State, err, ErrInvalidChange)
		}
	}
}

func TestStateString(t *testing.T) {
	if Unknown.String() != "unknown" || Authenticated.String() != "authenticated" || Anonymous.String() != "anonymous" {
		t.Error("unexpected State strings")
	}
}
