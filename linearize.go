package silica

import "github.com/silicaview/silica/compositor"

// Linearize flattens a layer tree into the compositor's ordered render
// list. Children are stored front-to-back, so traversal runs in reverse to
// produce bottom-to-top draw order.
//
// A hidden group prunes its whole subtree and a hidden layer is skipped.
// Every visible unclipped layer becomes the mask source for the clipped
// layers that follow it; the mask source carries across group boundaries. A
// clipped layer with no visible mask source is skipped. Clipped entries
// reference the mask source by its index in the returned list.
//
// Linearize never fails; it only skips.
func Linearize(root *SilicaGroup) []compositor.CompositeLayer {
	var out []compositor.CompositeLayer
	mask := compositor.ClipNone

	var walk func(g *SilicaGroup)
	walk = func(g *SilicaGroup) {
		for i := len(g.Children) - 1; i >= 0; i-- {
			switch n := g.Children[i].(type) {
			case *SilicaGroup:
				if n.Hidden {
					continue
				}
				walk(n)
			case *SilicaLayer:
				if n.Hidden {
					continue
				}
				if n.Clipped && mask == compositor.ClipNone {
					continue
				}
				clip := compositor.ClipNone
				if n.Clipped {
					clip = mask
				}
				out = append(out, compositor.CompositeLayer{
					Texture: n.Image,
					Clipped: clip,
					Opacity: n.Opacity,
					Blend:   n.Blend,
				})
				if !n.Clipped {
					mask = len(out) - 1
				}
			}
		}
	}
	walk(root)
	return out
}
