package content

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/action-initiative/internal/game/action"
	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/scene"
)

// yamlScriptFile is the top-level YAML structure for encounter scripts.
type yamlScriptFile struct {
	Encounter yamlEncounter `yaml:"encounter"`
}

type yamlEncounter struct {
	ID            string            `yaml:"id"`
	TimerDuration int64             `yaml:"timer_duration"`
	DexTiebreaker bool              `yaml:"dex_tiebreaker"`
	Dice          []int             `yaml:"dice"`
	Participants  []yamlParticipant `yaml:"participants"`
	Actors        []yamlActor       `yaml:"actors"`
	Tokens        []yamlToken       `yaml:"tokens"`
	Combatants    []yamlCombatant   `yaml:"combatants"`
	Actions       []yamlAction      `yaml:"actions"`
	Steps         []yamlStep        `yaml:"steps"`
}

type yamlParticipant struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Owner bool   `yaml:"owner"`
}

type yamlActor struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Spellcasting string         `yaml:"spellcasting"`
	Abilities    map[string]int `yaml:"abilities"`
}

type yamlToken struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Actor        string   `yaml:"actor"`
	ControlledBy []string `yaml:"controlled_by"`
}

type yamlCombatant struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Actor string `yaml:"actor"`
	Token string `yaml:"token"`
}

type yamlAction struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	ItemType    string   `yaml:"item_type"`
	Kind        string   `yaml:"kind"`
	Damage      []string `yaml:"damage"`
	Heals       bool     `yaml:"heals"`
	Range       string   `yaml:"range"`
	SaveAbility string   `yaml:"save"`
}

type yamlStep struct {
	Op          string `yaml:"op"`
	Participant string `yaml:"participant"`
	Actor       string `yaml:"actor"`
	Action      string `yaml:"action"`
	Token       string `yaml:"token"`
	Target      string `yaml:"target"`
	On          bool   `yaml:"on"`
	Answer      string `yaml:"answer"`
	Total       int    `yaml:"total"`
	Advance     string `yaml:"advance"`
	Duration    int64  `yaml:"duration"`
}

// LoadScriptFromFile reads and validates an encounter script.
//
// Precondition: path must point to a YAML encounter script.
// Postcondition: Returns a validated Script or a non-nil error.
func LoadScriptFromFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script file %s: %w", path, err)
	}
	return LoadScriptFromBytes(data)
}

// LoadScriptFromBytes parses and validates an encounter script from YAML bytes.
//
// Postcondition: Returns a validated Script or a non-nil error.
func LoadScriptFromBytes(data []byte) (*Script, error) {
	var file yamlScriptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing script YAML: %w", err)
	}
	s, err := convertYAMLEncounter(file.Encounter)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating script: %w", err)
	}
	return s, nil
}

func convertYAMLEncounter(ye yamlEncounter) (*Script, error) {
	s := &Script{
		Encounter:     ye.ID,
		TimerDuration: ye.TimerDuration,
		DexTiebreaker: ye.DexTiebreaker,
		Dice:          ye.Dice,
		Actions:       make(map[string]action.Action, len(ye.Actions)),
	}
	for _, yp := range ye.Participants {
		s.Participants = append(s.Participants, Participant(yp))
	}
	for _, ya := range ye.Actors {
		a := combat.Actor{
			ID:                  ya.ID,
			Name:                ya.Name,
			SpellcastingAbility: combat.Ability(ya.Spellcasting),
			Abilities:           make(map[combat.Ability]int, len(ya.Abilities)),
		}
		for k, v := range ya.Abilities {
			a.Abilities[combat.Ability(k)] = v
		}
		s.Actors = append(s.Actors, a)
	}
	for _, yt := range ye.Tokens {
		s.Tokens = append(s.Tokens, scene.Token{
			ID:           yt.ID,
			Name:         yt.Name,
			ActorID:      yt.Actor,
			ControlledBy: yt.ControlledBy,
		})
	}
	for _, yc := range ye.Combatants {
		s.Combatants = append(s.Combatants, combat.Combatant{
			ID:      yc.ID,
			Name:    yc.Name,
			ActorID: yc.Actor,
			TokenID: yc.Token,
		})
	}
	for _, ya := range ye.Actions {
		if _, dup := s.Actions[ya.ID]; dup || ya.ID == "" {
			return nil, fmt.Errorf("action id %q is empty or duplicated", ya.ID)
		}
		s.Actions[ya.ID] = action.Action{
			ID:          ya.ID,
			Name:        ya.Name,
			ItemType:    action.ItemType(ya.ItemType),
			Kind:        action.Kind(ya.Kind),
			DamageParts: ya.Damage,
			Heals:       ya.Heals,
			RangeUnits:  action.RangeUnits(ya.Range),
			SaveAbility: combat.Ability(ya.SaveAbility),
		}
	}
	for i, ys := range ye.Steps {
		st, err := convertYAMLStep(ys)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		s.Steps = append(s.Steps, st)
	}
	return s, nil
}

func convertYAMLStep(ys yamlStep) (Step, error) {
	st := Step{
		Op:          Op(ys.Op),
		Participant: ys.Participant,
		Actor:       ys.Actor,
		Action:      ys.Action,
		Token:       ys.Token,
		Target:      ys.Target,
		On:          ys.On,
		Total:       ys.Total,
		Duration:    ys.Duration,
	}
	switch ys.Answer {
	case "":
	case "affirm":
		st.Answer = action.Affirm
	case "decline":
		st.Answer = action.Decline
	case "cancel":
		st.Answer = action.Cancel
	default:
		return Step{}, fmt.Errorf("unknown answer %q", ys.Answer)
	}
	if ys.Advance != "" {
		d, err := time.ParseDuration(ys.Advance)
		if err != nil {
			return Step{}, fmt.Errorf("parsing advance %q: %w", ys.Advance, err)
		}
		st.Advance = d
	}
	return st, nil
}
