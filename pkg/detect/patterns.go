package detect

import "regexp"

// weightedPattern pairs a precompiled pattern with its weight and a
// stable name used in finding evidence.
type weightedPattern struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

// category is an immutable pattern table for one threat category.
type category struct {
	name       Category
	multiplier float64
	patterns   []weightedPattern
	maxWeight  float64
}

// compileCategory builds a category table and precomputes the maximum
// possible weight sum used for confidence normalization.
func compileCategory(name Category, multiplier float64, patterns []weightedPattern) category {
	var total float64
	for _, p := range patterns {
		total += p.weight
	}
	return category{
		name:       name,
		multiplier: multiplier,
		patterns:   patterns,
		maxWeight:  total,
	}
}

// pat is a construction helper; the patterns are literals compiled once
// per detector, so MustCompile failures are programming errors.
func pat(name, expr string, weight float64) weightedPattern {
	return weightedPattern{
		name:   name,
		re:     regexp.MustCompile(expr),
		weight: weight,
	}
}

// defaultCategories builds the built-in pattern tables.
//
// Severity multipliers are fixed per category: the worst jailbreak is
// worse than the worst injection, which is worse than the worst PII
// exposure. Token storm is handled separately with a fixed score.
func defaultCategories() []category {
	return []category{
		compileCategory(CategoryPromptInjection, 8.0, []weightedPattern{
			pat("instruction_override", `(?i)ignore (all |any )?(previous|prior|above) instructions`, 1.0),
			pat("system_prompt_probe", `(?i)reveal .{0,40}(system prompt|instructions)`, 0.9),
			pat("instruction_disregard", `(?i)disregard (the |your |all )?(rules|instructions|guidelines)`, 0.8),
			pat("role_hijack", `(?i)pretend (you are|to be|you have no)`, 0.8),
		}),
		compileCategory(CategoryPII, 6.0, []weightedPattern{
			pat("ssn", `\b\d{3}-\d{2}-\d{4}\b`, 1.0),
			pat("credit_card", `\b(?:\d[ -]?){13,16}\b`, 1.0),
			pat("email", `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, 0.6),
			pat("phone", `\b\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`, 0.6),
		}),
		compileCategory(CategorySensitiveDisclosure, 7.0, []weightedPattern{
			pat("private_key", `-----BEGIN (?:RSA |EC )?PRIVATE KEY-----`, 1.2),
			pat("aws_access_key", `\bAKIA[0-9A-Z]{16}\b`, 1.1),
			pat("api_key_assignment", `(?i)(api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]`, 1.0),
			pat("password_assignment", `(?i)password\s*[:=]\s*\S+`, 0.9),
		}),
		compileCategory(CategoryJailbreak, 9.0, []weightedPattern{
			pat("dan_mode", `(?i)\bDAN\b.{0,30}(mode|jailbreak)`, 1.0),
			pat("do_anything_now", `(?i)do anything now`, 1.0),
			pat("safety_bypass", `(?i)bypass (the )?(safety|content|moderation)`, 1.0),
			pat("no_restrictions", `(?i)without (any )?(restrictions|filters|limitations)`, 0.9),
			pat("privileged_mode", `(?i)(developer|god) mode`, 0.8),
		}),
	}
}
