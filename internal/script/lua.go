// Package script renders a plan as a turtle program.
package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/state"
)

var ErrNoRoute = errors.New("no route back to the supply point")

const prelude = `local function selectItem(name)
  for slot = 1, 16 do
    local d = turtle.getItemDetail(slot)
    if d and (d.name == name or d.name == "minecraft:" .. name) then
      turtle.select(slot)
      return true
    end
  end
  return false
end

local function must(ok, what)
  if not ok then
    error(what, 2)
  end
end

local function place(fn, name, step)
  if not selectItem(name) then
    print("out of " .. name .. " at step " .. step .. ", refill and press a key")
    os.pullEvent("key")
    must(selectItem(name), "missing " .. name)
  end
  must(fn(), "place " .. name .. " at step " .. step)
end

local function resupply(step)
  print("at supply point (step " .. step .. "), refill and press a key")
  os.pullEvent("key")
end
`

var moves = map[state.Kind]string{
	state.TurnLeft:  "turtle.turnLeft()",
	state.TurnRight: "turtle.turnRight()",
	state.Forward:   `must(turtle.forward(), "forward")`,
	state.Back:      `must(turtle.back(), "back")`,
	state.Up:        `must(turtle.up(), "up")`,
	state.Down:      `must(turtle.down(), "down")`,
}

var placers = map[state.Kind]string{
	state.PlaceForward: "turtle.place",
	state.PlaceUp:      "turtle.placeUp",
	state.PlaceDown:    "turtle.placeDown",
}

// WriteLua writes plan as a ComputerCraft script. states must come from
// planner.Replay: states[i] is the state plan.Actions[i] is taken in. A resupply is
// spelled out as the walk back along the field gradient.
func WriteLua(w io.Writer, name string, plan *planner.Plan, states []*state.State) error {
	if len(states) != len(plan.Actions)+1 {
		return fmt.Errorf("script: %d states for %d actions", len(states), len(plan.Actions))
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "-- %s\n-- run %s: %d actions, cost %d\n\n", name, plan.RunID, len(plan.Actions), plan.Cost)
	bw.WriteString(prelude)

	chunkEnd := 0
	chunk := -1
	for i, a := range plan.Actions {
		for i == chunkEnd && chunk+1 < len(plan.Chunks) {
			chunk++
			c := plan.Chunks[chunk]
			fmt.Fprintf(bw, "\n-- chunk %d: y %d..%d, %d blocks\n", c.Index+1, c.MinY, c.MaxY, c.Blocks)
			chunkEnd += c.Actions
		}
		s := states[i]
		switch {
		case a.Kind.IsPlace():
			r := s.Remaining().At(a.Target)
			if r == nil {
				return fmt.Errorf("script: step %d: %w", i, state.ErrNoBlock)
			}
			fmt.Fprintf(bw, "place(%s, %q, %d)\n", placers[a.Kind], r.Item(), i+1)
		case a.Kind == state.Resupply:
			route, ok := state.ResupplyRoute(s.Field(), s.Pose(), s.Env().Supply)
			if !ok {
				return fmt.Errorf("script: step %d from %v: %w", i, s.Pose().Pos, ErrNoRoute)
			}
			for _, k := range route {
				bw.WriteString(moves[k] + "\n")
			}
			fmt.Fprintf(bw, "resupply(%d)\n", i+1)
		default:
			line, ok := moves[a.Kind]
			if !ok {
				return fmt.Errorf("script: step %d: unknown action %v", i, a.Kind)
			}
			bw.WriteString(line + "\n")
		}
	}
	bw.WriteString("\nprint(\"done\")\n")
	return bw.Flush()
}
