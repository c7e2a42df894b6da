package store

import (
	"database/sql"
	"testing"
)

func TestNextShareToken(t *testing.T) {
	// Going private always clears the token.
	token, minted := nextShareToken("private", sql.NullString{String: "existing", Valid: true})
	if token != nil || minted {
		t.Fatalf("private must clear the token, got %v minted=%v", token, minted)
	}

	// Moving between shared and public keeps the existing token.
	token, minted = nextShareToken("public", sql.NullString{String: "existing", Valid: true})
	if token == nil || *token != "existing" || minted {
		t.Fatalf("existing token must survive, got %v minted=%v", token, minted)
	}
	token, minted = nextShareToken("shared", sql.NullString{String: "existing", Valid: true})
	if token == nil || *token != "existing" || minted {
		t.Fatalf("existing token must survive, got %v minted=%v", token, minted)
	}

	// Leaving private mints a fresh 128-bit hex token.
	first, minted := nextShareToken("shared", sql.NullString{})
	if first == nil || !minted {
		t.Fatalf("expected a minted token")
	}
	if len(*first) != 32 {
		t.Fatalf("expected 32 hex characters, got %d", len(*first))
	}
	second, _ := nextShareToken("shared", sql.NullString{})
	if *first == *second {
		t.Fatalf("minted tokens must not repeat")
	}
}
