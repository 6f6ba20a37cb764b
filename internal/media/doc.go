// Package media holds the data interchange types shared by pipeline stages:
// timed transcript segments, the transcript JSON files stages hand to each
// other, SRT subtitle rendering, and the staging directory layout that maps
// a job and stage to the files they own.
package media
