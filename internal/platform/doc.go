// Package platform describes the satellite platforms earthgazer follows.
//
// Each platform is declared in YAML: how its scenes are projected out of the
// public catalog index, which spectral bands are tracked, the filename grammar
// that recognizes a band asset in object storage, per-capture radiometric
// attributes, and the named band combinations used for composites. The
// builtin definitions cover Landsat 8 and Sentinel-2; operators can layer
// additional definitions on top through the platforms.definitions_file
// setting.
package platform
