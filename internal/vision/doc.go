// Package vision defines the raster types shared by the cleaning pipeline:
// decoded frames, detected text regions, and binary masks. Frames are treated
// as immutable once produced; stages that change pixels return new frames.
package vision
