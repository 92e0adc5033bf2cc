package instrument

// The shim runs inside the sandboxed document before anything else. It only
// ever hands the parent strings, never live objects.

const shimPrelude = `(function () {
  if (window.__playgroundShim) { return; }
  window.__playgroundShim = true;
  var post = function (method, args) {
    try {
      window.parent.postMessage({ type: "console", method: method, args: args }, "*");
    } catch (e) {}
  };
  var typeName = function (value) {
    try {
      return Object.prototype.toString.call(value);
    } catch (e) {
      return "[object Unknown]";
    }
  };
  var serialize = function (value) {
    if (value === undefined) { return "undefined"; }
    if (value === null) { return "null"; }
    var kind = typeof value;
    if (kind === "string") { return value; }
    if (kind === "number" || kind === "boolean" || kind === "bigint" || kind === "symbol") {
      return String(value);
    }
    if (kind === "function") { return "[Function " + (value.name || "anonymous") + "]"; }
    if (value instanceof Error) { return value.name + ": " + value.message; }
    try {
      var text = JSON.stringify(value, null, 2);
      return text === undefined ? typeName(value) : text;
    } catch (e) {
      return typeName(value);
    }
  };
`

// shimConsole is formatted with the JSON array of console method names.
const shimConsole = `  var busy = false;
  var methods = %s;
  methods.forEach(function (method) {
    var original = console[method];
    console[method] = function () {
      var list = Array.prototype.slice.call(arguments);
      var report = true;
      if (method === "assert") {
        report = !list[0];
        list = ["Assertion failed"].concat(list.slice(1));
      }
      if (report && !busy) {
        busy = true;
        try {
          post(method, list.map(serialize));
        } catch (e) {
        } finally {
          busy = false;
        }
      }
      if (typeof original === "function") {
        return original.apply(console, arguments);
      }
    };
  });
`

const shimErrors = `  window.addEventListener("error", function (event) {
    var target = event.target;
    if (target && target !== window && (target.src || target.href)) {
      post("error", ["Failed to load resource: " + (target.src || target.href)]);
    }
  }, true);
  window.onerror = function (message, source, line, column) {
    post("error", [String(message) + " (line " + line + ", col " + column + ")"]);
    return true;
  };
  window.addEventListener("unhandledrejection", function (event) {
    post("error", ["Unhandled promise rejection: " + serialize(event.reason)]);
    event.preventDefault();
  });
`

const shimEpilogue = `})();`
