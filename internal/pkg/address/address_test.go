package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{"genesis legacy", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", true},
		{"p2sh legacy", "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", true},
		{"segwit", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", true},
		{"empty", "", false},
		{"too short", "1A1zP1eP5QGefi2DMPTfT", false},
		{"too long legacy", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa1234", false},
		{"bad prefix", "2A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", false},
		{"base58 excluded chars", "1A1zP1eP5QGefi2DMPTfTL5SLmv7Div0Ol", false},
		{"segwit uppercase", "BC1QAR0SRRR7XFKVY5L643LYDNW9RE59GTZZWF5MDQ", false},
		{"segwit too short", "bc1qar0srrr7xfkvy", false},
		{"whitespace", " 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, Validate(tt.addr), "address %q", tt.addr)
		})
	}
}

func TestExtract(t *testing.T) {
	raw := `{"corrupted: ["1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa" garbage ` +
		`bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq more ` +
		`1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa]`

	got := Extract(raw)
	assert.Equal(t, []string{
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		"bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
	}, got, "duplicates removed, first-seen order kept")
}

func TestExtractNothingRecoverable(t *testing.T) {
	assert.Nil(t, Extract(`{"wallets": [<<<???>>>]}`))
	assert.Nil(t, Extract(""))
}
