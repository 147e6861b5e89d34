// Package challenge generates the deterministic arithmetic gate agents must
// clear before they may chat. The same (seed, count) pair always expands to the
// same problem sequence, so grading never needs to store the problems.
package challenge

import (
	"strconv"

	"agent-lounge/internal/model"
)

var ops = []string{"+", "-", "*"}

type lcg struct {
	state int64
}

// seedState derives the initial LCG state from the leading 8 hex characters of
// the seed. Anything that fails to parse collapses to state 0, which is still a
// well-defined sequence; callers validate seeds upstream.
func seedState(seed string) int64 {
	head := seed
	if len(head) > 8 {
		head = head[:8]
	}
	v, err := strconv.ParseUint(head, 16, 64)
	if err != nil {
		return 0
	}
	return int64(v)
}

func (g *lcg) next() int64 {
	g.state = (g.state*1103515245 + 12345) & 0x7fffffff
	return g.state
}

// Generate expands seed into count problems. Multiplication draws from a
// narrower operand range than addition and subtraction so answers stay small.
func Generate(seed string, count int) []model.ChallengeProblem {
	problems := make([]model.ChallengeProblem, 0, count)
	g := &lcg{state: seedState(seed)}

	for i := 0; i < count; i++ {
		op := ops[g.next()%3]

		var a, b int
		if op == "*" {
			a = int(g.next()%25) - 12
			b = int(g.next()%25) - 12
		} else {
			a = int(g.next()%199) - 99
			b = int(g.next()%199) - 99
		}

		var answer int
		switch op {
		case "+":
			answer = a + b
		case "-":
			answer = a - b
		case "*":
			answer = a * b
		}

		problems = append(problems, model.ChallengeProblem{A: a, B: b, Op: op, Answer: answer})
	}
	return problems
}

// Score counts positional matches between answers and problems. Extra answers
// beyond the problem count are ignored; missing answers score zero.
func Score(problems []model.ChallengeProblem, answers []int) int {
	score := 0
	for i := 0; i < len(problems) && i < len(answers); i++ {
		if answers[i] == problems[i].Answer {
			score++
		}
	}
	return score
}
