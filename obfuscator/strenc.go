package obfuscator

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// minEncryptLen is the shortest literal worth encrypting; anything
// shorter leaks nothing useful and bloats the output.
const minEncryptLen = 3

// defaultEncryptionKey is the fixed key used when the caller supplies
// none. Callers wanting per-build keys pass their own through Config.
var defaultEncryptionKey = []byte{0x4f, 0x62, 0x73, 0x63, 0x75, 0x72, 0x61, 0x21}

// Encryptor replaces eligible string literals with decode calls and
// emits the companion decoder once per batch.
type Encryptor struct {
	key      []byte
	funcName string
}

// NewEncryptor prepares an encryptor for one batch. The decoder name is
// drawn from the run's generator so it can never collide with a
// generated rename.
func NewEncryptor(key []byte, ctx *Context) (*Encryptor, error) {
	if len(key) == 0 {
		key = defaultEncryptionKey
	}
	name, err := ctx.Gen.Next(KindMethod, "decrypt")
	if err != nil {
		return nil, fmt.Errorf("naming decoder: %w", err)
	}
	return &Encryptor{key: key, funcName: name}, nil
}

// EncryptStrings rewrites every eligible literal in the batch to a
// Decrypt(payload, key) call and returns the synthesized decoder unit,
// or nil when no literal was encrypted.
func (e *Encryptor) EncryptStrings(model *Model, pres *PreservationResult, ctx *Context) (*CompilationUnit, error) {
	var firstPackage string
	encrypted := 0

	for _, unit := range model.Units {
		out := make([]Token, 0, len(unit.Tokens))
		changed := false
		for _, tok := range unit.Tokens {
			if !e.eligible(tok, pres) {
				out = append(out, tok)
				continue
			}
			out = append(out, e.callTokens(tok.Value, tok.Method)...)
			changed = true
			encrypted++
			ctx.Stats.StringsEncrypted++
			if firstPackage == "" {
				firstPackage = unit.Package
			}
		}
		if changed {
			unit.Tokens = out
		}
	}

	if encrypted == 0 {
		return nil, nil
	}
	ctx.Log.Infof("encrypted %d string literals; decoder %s emitted", encrypted, e.funcName)
	return e.decoderUnit(firstPackage), nil
}

func (e *Encryptor) eligible(tok Token, pres *PreservationResult) bool {
	if tok.Kind != TokenString || len(tok.Value) < minEncryptLen {
		return false
	}
	if tok.hasFlag(FlagAttributeArg) || tok.hasFlag(FlagInterpolated) ||
		tok.hasFlag(FlagNameOf) || tok.hasFlag(FlagConstant) {
		return false
	}
	if tok.Method != "" && pres.NoStringEncryption(tok.Method) {
		return false
	}
	return true
}

// callTokens builds the replacement expression for one literal. The
// payload and key arguments carry FlagAttributeArg so a repeated
// encryption pass can never double-encrypt them.
func (e *Encryptor) callTokens(value, method string) []Token {
	payload := e.encode([]byte(value))
	keyB64 := base64.StdEncoding.EncodeToString(e.key)
	return []Token{
		{Kind: TokenIdent, Text: e.funcName, Method: method},
		{Kind: TokenOther, Text: "("},
		{Kind: TokenString, Text: strconv.Quote(payload), Value: payload, Method: method, Flags: FlagAttributeArg},
		{Kind: TokenOther, Text: ","},
		{Kind: TokenSpace, Text: " "},
		{Kind: TokenString, Text: strconv.Quote(keyB64), Value: keyB64, Method: method, Flags: FlagAttributeArg},
		{Kind: TokenOther, Text: ")"},
	}
}

// encode XORs the plaintext against the repeating key and encodes the
// result, so decode(payload) XOR repeat(key) restores the original.
func (e *Encryptor) encode(plain []byte) string {
	enc := make([]byte, len(plain))
	for i, b := range plain {
		enc[i] = b ^ e.key[i%len(e.key)]
	}
	return base64.StdEncoding.EncodeToString(enc)
}

// Decrypt is the reference decode routine; the emitted decoder must
// reproduce it exactly. Tests use it to verify the round-trip law.
func Decrypt(payload, key string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decoding payload: %w", err)
	}
	k, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("decoding key: %w", err)
	}
	if len(k) == 0 {
		return "", fmt.Errorf("empty key")
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ k[i%len(k)]
	}
	return string(out), nil
}

// decoderUnit synthesizes the one decoder helper for the batch, in the
// package of the first unit that encrypted a literal. The package-clause
// ident and the declared function name are standalone tokens so a
// frontend can retarget or replicate the unit when its language scopes
// the helper narrower than the batch.
func (e *Encryptor) decoderUnit(pkg string) *CompilationUnit {
	body := `(s, k string) string {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	key, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		return ""
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return string(out)
}
`

	return &CompilationUnit{
		Path:    "obscura_decrypt.go",
		Package: pkg,
		Tokens: []Token{
			{Kind: TokenKeyword, Text: "package"},
			{Kind: TokenSpace, Text: " "},
			{Kind: TokenIdent, Text: pkg},
			{Kind: TokenSpace, Text: "\n\n"},
			{Kind: TokenOther, Text: `import "encoding/base64"`},
			{Kind: TokenSpace, Text: "\n\n"},
			{Kind: TokenKeyword, Text: "func"},
			{Kind: TokenSpace, Text: " "},
			{Kind: TokenIdent, Text: e.funcName, Decl: true},
			{Kind: TokenOther, Text: body},
		},
	}
}
