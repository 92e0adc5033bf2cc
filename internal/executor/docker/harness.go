package docker

// harness is evaluated with `node -e`. It reads the submission from the
// PayloadEnv variable and prints an executor.Outcome as JSON on stdout.
//
// User code runs in its own vm context. Compiling and every call are
// separate runInContext steps, each bounded by CallTimeoutEnv, so one
// looping test does not take the others down with it. Values are printed
// inside the context with helpers pinned before user code runs.
const harness = `
const vm = require("vm");
const payload = JSON.parse(process.env.GRADER_PAYLOAD);
const limit = Number(process.env.GRADER_CALL_TIMEOUT_MS) || 2000;
const timedOut = "execution timed out after " + limit + "ms";
const out = { calls: [] };

const sandbox = vm.createContext({});
const run = (code) => vm.runInContext(code, sandbox, { timeout: limit });
const pin = (name, value) => Object.defineProperty(sandbox, name, { value: value });
const isTimeout = (e) => e instanceof Error && e.code === "ERR_SCRIPT_EXECUTION_TIMEOUT";

pin("__helpers", run(` + "`" + `Object.freeze((function (S, tag, apply, stringify, parse) {
  const text = function (v) {
    try { return S(v); } catch (e) {}
    try { return tag(v); } catch (e) { return "[object]"; }
  };
  return { text: text, apply: apply, stringify: stringify, parse: parse };
})(String, Function.prototype.call.bind(Object.prototype.toString), Reflect.apply, JSON.stringify, JSON.parse))` + "`" + `));

const describe = (e) => {
  if (isTimeout(e)) return timedOut;
  try {
    sandbox.__thrown = e;
    return String(run("__helpers.text(__thrown)"));
  } catch (err) {
    return isTimeout(err) ? timedOut : "uncaught exception";
  }
};

try {
  pin("__entry", run("(function () {\n" + payload.source + "\n;return typeof " + payload.entry +
    " === \"function\" ? " + payload.entry + " : undefined;\n})()"));
  if (typeof sandbox.__entry !== "function") {
    out.compileError = payload.entry + " is not defined as a function";
  }
} catch (e) {
  out.compileError = describe(e);
}

const callSource = ` + "`" + `(function () {
  const h = __helpers;
  let v;
  try { v = h.apply(__entry, undefined, h.parse(__input) || []); }
  catch (e) { return { error: h.text(e) }; }
  if (v === undefined) return { undefined: true, text: "undefined" };
  const t = h.text(v);
  let s;
  try { s = h.stringify(v); } catch (e) { return { text: t, error: h.text(e) }; }
  return s === undefined ? { undefined: true, text: t } : { json: s, text: t };
})()` + "`" + `;

if (!out.compileError) {
  for (const input of payload.inputs || []) {
    sandbox.__input = JSON.stringify(input);
    try {
      const r = run(callSource);
      if (r.json !== undefined) {
        out.calls.push({ value: JSON.parse(r.json), text: r.text });
      } else {
        out.calls.push({ undefined: r.undefined, text: r.text, error: r.error });
      }
    } catch (e) {
      out.calls.push({ error: describe(e) });
    }
  }
}
process.stdout.write(JSON.stringify(out));
`

// PayloadEnv carries the JSON-encoded executor.Submission into the container.
const PayloadEnv = "GRADER_PAYLOAD"

// CallTimeoutEnv carries Config.CallTimeout in milliseconds.
const CallTimeoutEnv = "GRADER_CALL_TIMEOUT_MS"
