package sequencer

import "github.com/ChuLiYu/intro-sequencer/pkg/types"

// Navigate forwards target to the page shell unless it is the non-navigable
// sentinel. It reports whether the shell callback was invoked.
func (s *Sequencer) Navigate(target string) bool {
	entry := types.MenuEntry{Target: target}
	if !entry.Navigable() || s.navigate == nil {
		return false
	}

	s.navigate(target)
	if s.rec != nil {
		s.rec.RecordNavigate(target)
	}
	s.log.Debug("Navigate", "target", target)
	return true
}

// Select is a click on menu item i. Only revealed items respond.
func (s *Sequencer) Select(i int) bool {
	if i < 0 || i >= len(s.script.Menu) {
		return false
	}
	if !s.State().ItemRevealed(i) {
		return false
	}
	return s.Navigate(s.script.Menu[i].Target)
}
