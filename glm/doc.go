/*
Package glm fits generalized linear models by maximum likelihood, using
either iteratively reweighted least squares or gradient optimization.
The data are read one chunk at a time from a dstream, see
http://github.com/kshedden/dstream.

The Poisson family with the log link gives Poisson pseudo maximum
likelihood (PPML) estimates, which are consistent for exponential mean
models under the same moment conditions used by rel.PoissonIV.  A PPML
fit is a natural starting value for a relaxed empirical likelihood fit.
*/
package glm
