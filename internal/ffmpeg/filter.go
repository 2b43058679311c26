// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/streamgate/streamgate/internal/probe"
)

// BuildAudioFilterGraph produces the filter_complex graph applied to every
// transcoded audio track. Per track the graph enforces a 5.1 layout, boosts
// dialog intelligibility (treble lift on center and fronts, center bleed
// into the fronts at 70/30, 1.5x center gain) and rejoins the six channels
// into one labeled output per track.
//
// Output labels are [outa<i>] with i the track ordinal; every intermediate
// label carries a _<i> suffix so graphs for multiple tracks never collide.
// The returned string never ends in a semicolon; ffmpeg rejects a trailing
// empty filter chain.
func BuildAudioFilterGraph(tracks []probe.AudioStream) string {
	var b strings.Builder

	for _, t := range tracks {
		i := t.Ordinal
		// Split the 5.1 source into discrete channels.
		fmt.Fprintf(&b,
			"[0:%d]aformat=channel_layouts=5.1,channelsplit=channel_layout=5.1[FL_%d][FR_%d][FC_%d][LFE_%d][BL_%d][BR_%d];",
			t.Index, i, i, i, i, i, i)
		// Treble-boost the center and split it three ways.
		fmt.Fprintf(&b,
			"[FC_%d]treble=g=4:f=5000,treble=g=3:f=8000,asplit=3[FCA_%d][FCB_%d][FCC_%d];",
			i, i, i, i)
		// Treble-boost the fronts.
		fmt.Fprintf(&b, "[FL_%d]treble=g=4:f=6000[FLB_%d];", i, i)
		fmt.Fprintf(&b, "[FR_%d]treble=g=4:f=6000[FRB_%d];", i, i)
		// Bleed 30% of the boosted center into each front.
		fmt.Fprintf(&b, "[FLB_%d][FCA_%d]amix=inputs=2:weights=0.7 0.3[FLM_%d];", i, i, i)
		fmt.Fprintf(&b, "[FRB_%d][FCB_%d]amix=inputs=2:weights=0.7 0.3[FRM_%d];", i, i, i)
		// The third center copy replaces the original center, scaled up.
		fmt.Fprintf(&b, "[FCC_%d]volume=1.5[FCM_%d];", i, i)
		// Rejoin all six channels into the labeled 5.1 output.
		fmt.Fprintf(&b,
			"[FLM_%d][FRM_%d][FCM_%d][LFE_%d][BL_%d][BR_%d]join=inputs=6:channel_layout=5.1[outa%d];",
			i, i, i, i, i, i, i)
	}

	return strings.TrimSuffix(b.String(), ";")
}

// AudioOutputLabel names the filter graph output for an audio track ordinal.
func AudioOutputLabel(ordinal int) string {
	return fmt.Sprintf("[outa%d]", ordinal)
}
