// Package tidytune is a model-selection toolkit for Go: split a dataset,
// build candidate preprocessing × model workflows, tune them over
// resamples, rank and select, then evaluate the chosen workflow exactly
// once on held-out data.
//
// # Installation
//
//	go get github.com/YuminosukeSato/tidytune
//
// # Quick Start
//
//	split, err := resample.InitialSplit(data, resample.SplitOptions{Strata: "class", Seed: 42})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	folds, err := tune.VFold(split.Training(), resample.VFoldOptions{V: 10, Strata: "class", Seed: 42})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	wf := workflow.New("glmnet",
//	    recipe.New("class", recipe.Normalize(recipe.AllNumericPredictors())),
//	    modelspec.LogisticReg().SetTune(param.Penalty()))
//	grid, _ := param.Regular(param.Set{param.Penalty()}, 20)
//
//	res, err := tune.TuneGrid(ctx, wf, folds, grid, nil, tune.Control{Race: &tune.RaceControl{}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	best, _, err := tune.SelectByOneStdErr(res, "roc_auc", tune.Desc("penalty"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	final, err := tune.LastFit(ctx, wf, best, split, nil, tune.LastFitOptions{})
//
// # Packages
//
//   - dataset: column-typed frames, CSV reading and rate-limited fetching
//   - resample: initial split, v-fold, bootstraps, validation split
//   - param: tunable parameters and grids (regular, random, Latin hypercube)
//   - recipe: preprocessing steps estimated on analysis data only
//   - modelspec: linear, logistic, nearest-neighbour and tree engines
//   - metrics: metric sets for numeric, class and probability predictions
//   - workflow: recipe + model pairs and candidate sets
//   - tune: grid tuning with racing, selection rules, last fit
//   - explain: native and permutation variable importance
//   - bundle, serve: deployable fitted workflows and an HTTP predictor
//   - autoplot, store: plots and a SQLite journal of tuning results
//   - config: koanf-backed configuration
//   - core/model, core/parallel, pkg/errors, pkg/log: shared infrastructure
//
// # Reproducibility
//
// Every random choice takes an explicit seed. Tuning results do not depend
// on the number of workers.
//
// # License
//
// tidytune is released under the MIT License.
package tidytune
