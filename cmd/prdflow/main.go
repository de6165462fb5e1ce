// prdflow drives phased, human-gated document generation sessions.
//
// Usage:
//
//	prdflow session new --flow greenfield [--input-dir docs/]
//	prdflow intake submit --session <id> -f answers.yaml
//	prdflow docs attach --session <id> [--dir docs/]
//	prdflow phase start --session <id> --phase 1 [--wait]
//	prdflow phase status --session <id> --phase 1
//	prdflow phase artifacts --session <id> --phase 1 [--kind prd]
//	prdflow approve --session <id> --phase 1 --approver <name> [--edit prd=prd.md]
//	prdflow reject --session <id> --phase 1 --feedback "..."
//	prdflow snapshot download --session <id> --phase 1 -o out/
//	prdflow serve
package main
