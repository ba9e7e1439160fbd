package value

// ToLiteral renders v as canonical surface syntax (v.String()), the
// representation the `toliteral` builtin returns. Every kind round-trips through the lexer/parser except Lambda,
// which has no canonical parseable form (spec §8 round-trip laws).
func ToLiteral(v Value) string {
	return v.String()
}
